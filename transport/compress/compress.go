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

package compress

import (
	"compress/zlib"
	"io"

	"github.com/pkg/errors"
)

// Level represents a stream compression level.
type Level int

const (
	// NoCompression represents no stream compression.
	NoCompression Level = iota

	// DefaultCompression represents 'default' stream compression level.
	DefaultCompression

	// BestCompression represents 'best for size' stream compression level.
	BestCompression

	// SpeedCompression represents 'best for speed' stream compression level.
	SpeedCompression
)

// ParseLevel maps a configuration string into a compression level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "", "none":
		return NoCompression, nil
	case "default":
		return DefaultCompression, nil
	case "best":
		return BestCompression, nil
	case "speed":
		return SpeedCompression, nil
	}
	return NoCompression, errors.Errorf("compress: unrecognized level: %s", s)
}

// String returns Level string representation.
func (cl Level) String() string {
	switch cl {
	case DefaultCompression:
		return "default"
	case BestCompression:
		return "best"
	case SpeedCompression:
		return "speed"
	}
	return "none"
}

// Zlib is a zlib (XEP-0138) stream compressor.
// Every write is flushed so the peer can inflate stanza by stanza.
type Zlib struct {
	level int
	w     io.Writer
	r     io.Reader
	zw    *zlib.Writer
	zr    io.ReadCloser
}

// NewZlib returns a compressor reading from r and writing to w.
func NewZlib(r io.Reader, w io.Writer, level Level) *Zlib {
	z := &Zlib{r: r, w: w}
	switch level {
	case DefaultCompression:
		z.level = zlib.DefaultCompression
	case BestCompression:
		z.level = zlib.BestCompression
	case SpeedCompression:
		z.level = zlib.BestSpeed
	default:
		z.level = int(level)
	}
	return z
}

func (z *Zlib) Write(p []byte) (int, error) {
	if z.zw == nil {
		zw, err := zlib.NewWriterLevel(z.w, z.level)
		if err != nil {
			return 0, err
		}
		z.zw = zw
	}
	n, err := z.zw.Write(p)
	if err != nil {
		return n, err
	}
	return n, z.zw.Flush()
}

func (z *Zlib) Read(p []byte) (int, error) {
	if z.zr == nil {
		zr, err := zlib.NewReader(z.r)
		if err != nil {
			return 0, err
		}
		z.zr = zr
	}
	return z.zr.Read(p)
}
