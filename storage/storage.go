// Copyright 2021 The jackal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage builds the repository selected by configuration.
package storage

import (
	"fmt"

	kitlog "github.com/go-kit/log"
	measuredrepository "github.com/jackal-xmpp/cmux/storage/measured"
	memoryrepository "github.com/jackal-xmpp/cmux/storage/memory"
	"github.com/jackal-xmpp/cmux/storage/repository"
	sqlrepository "github.com/jackal-xmpp/cmux/storage/sql"
)

const (
	memoryRepType = "memory"
	pgSQLRepType  = "pgsql"
	mySQLRepType  = "mysql"
)

const defaultMaxOpenConns = 16

// Config contains repository configuration.
type Config struct {
	Type string               `yaml:"type"`
	SQL  sqlrepository.Config `yaml:"sql"`
}

type configProxy struct {
	Type string               `yaml:"type"`
	SQL  sqlrepository.Config `yaml:"sql"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := configProxy{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	switch p.Type {
	case "":
		p.Type = memoryRepType
	case memoryRepType:
	case pgSQLRepType, mySQLRepType:
		if len(p.SQL.Host) == 0 {
			return fmt.Errorf("storage.Config: sql.host is required for %s storage", p.Type)
		}
		if p.SQL.MaxOpenConns == 0 {
			p.SQL.MaxOpenConns = defaultMaxOpenConns
		}
	default:
		return fmt.Errorf("storage.Config: unrecognized storage type: %s", p.Type)
	}
	c.Type = p.Type
	c.SQL = p.SQL
	return nil
}

// New returns an instrumented repository of the configured type.
func New(cfg Config, logger kitlog.Logger) (repository.Repository, error) {
	var rep repository.Repository
	switch cfg.Type {
	case memoryRepType, "":
		rep = memoryrepository.New()
	case pgSQLRepType:
		rep = sqlrepository.New(sqlrepository.PgSQL, cfg.SQL, logger)
	case mySQLRepType:
		rep = sqlrepository.New(sqlrepository.MySQL, cfg.SQL, logger)
	default:
		return nil, fmt.Errorf("storage: unrecognized repository type: %s", cfg.Type)
	}
	return measuredrepository.New(rep), nil
}
