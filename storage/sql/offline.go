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

package sqlrepository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	kitlog "github.com/go-kit/log"
	"github.com/jackal-xmpp/cmux/xmpp"
)

const offlineMessagesTableName = "offline_messages"

var nowExpr = sq.Expr("NOW()")

type sqlOfflineRep struct {
	conn   conn
	stmt   sq.StatementBuilderType
	logger kitlog.Logger
}

func (r *sqlOfflineRep) InsertOfflineMessage(ctx context.Context, message *xmpp.Message, username string) error {
	q := r.stmt.Insert(offlineMessagesTableName).
		Columns("username", "data", "created_at").
		Values(username, message.String(), nowExpr)

	_, err := q.RunWith(r.conn).ExecContext(ctx)
	return err
}

func (r *sqlOfflineRep) CountOfflineMessages(ctx context.Context, username string) (int, error) {
	var count int

	q := r.stmt.Select("COUNT(*)").
		From(offlineMessagesTableName).
		Where(sq.Eq{"username": username})

	if err := q.RunWith(r.conn).QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *sqlOfflineRep) FetchOfflineMessages(ctx context.Context, username string) ([]*xmpp.Message, error) {
	q := r.stmt.Select("data").
		From(offlineMessagesTableName).
		Where(sq.Eq{"username": username}).
		OrderBy("created_at")

	rows, err := q.RunWith(r.conn).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, r.logger)

	var ms []*xmpp.Message
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		msg, err := xmpp.ParseMessage(data)
		if err != nil {
			return nil, err
		}
		ms = append(ms, msg)
	}
	return ms, rows.Err()
}

func (r *sqlOfflineRep) DeleteOfflineMessages(ctx context.Context, username string) error {
	q := r.stmt.Delete(offlineMessagesTableName).
		Where(sq.Eq{"username": username})

	_, err := q.RunWith(r.conn).ExecContext(ctx)
	return err
}
