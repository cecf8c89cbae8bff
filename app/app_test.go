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

package app

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/jackal-xmpp/cmux/version"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type writerBuffer struct {
	mu  sync.RWMutex
	buf *bytes.Buffer
}

func newWriterBuffer() *writerBuffer {
	return &writerBuffer{buf: bytes.NewBuffer(nil)}
}

func (wb *writerBuffer) Write(p []byte) (int, error) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.buf.Write(p)
}

func (wb *writerBuffer) String() string {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	return wb.buf.String()
}

func TestApplication_EmptyArgs(t *testing.T) {
	require.NotNil(t, New(nil, nil).Run())
}

func TestApplication_ShowUsage(t *testing.T) {
	w := newWriterBuffer()

	err := New(w, []string{"./cmuxd", "-h"}).Run()

	require.Nil(t, err)
	require.Equal(t, expectedUsageString(), w.String())
}

func TestApplication_PrintVersion(t *testing.T) {
	w := newWriterBuffer()

	err := New(w, []string{"./cmuxd", "--version"}).Run()

	require.Nil(t, err)
	require.Equal(t, fmt.Sprintf("cmuxd version: %v\n", version.ApplicationVersion), w.String())
}

func TestApplication_HashPassword(t *testing.T) {
	w := newWriterBuffer()

	err := New(w, []string{"./cmuxd", "--hash-password", "secret"}).Run()

	require.Nil(t, err)
	hash := strings.TrimSpace(w.String())
	require.Nil(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")))
}

func TestApplication_MissingConfig(t *testing.T) {
	err := New(newWriterBuffer(), []string{"./cmuxd", "--config=testdata/missing.yml"}).Run()
	require.NotNil(t, err)
}

func TestApplication_Run(t *testing.T) {
	// given
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "run", "cmux.pid")
	cfgFile := filepath.Join(dir, "cmux.yml")

	cfg := fmt.Sprintf(`pid_path: %s
logger:
  level: "off"
hosts: [example.com]
runqueue:
  workers: 4
c2s:
  listen_addr: 127.0.0.1:0
multiplexer:
  listen_addr: 127.0.0.1:0
  secret: s3cr3t
`, pidFile)
	require.Nil(t, ioutil.WriteFile(cfgFile, []byte(cfg), 0644))

	ap := New(newWriterBuffer(), []string{"./cmuxd", "--config=" + cfgFile})
	ap.shutdownTimeout = time.Second * 2

	errCh := make(chan error, 1)
	go func() { errCh <- ap.Run() }()

	// when
	select {
	case <-ap.bootstrappedCh:
	case err := <-errCh:
		require.FailNow(t, "application exited", "err: %v", err)
	case <-time.After(time.Second * 5):
		require.FailNow(t, "bootstrap timeout")
	}
	_, err := os.Stat(pidFile)
	require.Nil(t, err)

	ap.waitStopCh <- syscall.SIGTERM

	// then
	select {
	case err := <-errCh:
		require.Nil(t, err)
	case <-time.After(time.Second * 5):
		require.FailNow(t, "shutdown timeout")
	}
	_, err = os.Stat(pidFile)
	require.True(t, os.IsNotExist(err))
}

func TestHTTPServer_Endpoints(t *testing.T) {
	// given
	srv := newHTTPServer(0, kitlog.NewNopLogger())
	require.Nil(t, srv.Start(context.Background()))
	defer func() { _ = srv.Stop(context.Background()) }()

	baseURL := fmt.Sprintf("http://%s", srv.addr().String())

	// when
	resp, err := http.Get(baseURL + "/healthz")
	require.Nil(t, err)
	body, _ := ioutil.ReadAll(resp.Body)
	_ = resp.Body.Close()

	// then
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok\n", string(body))

	resp, err = http.Get(baseURL + "/metrics")
	require.Nil(t, err)
	body, _ = ioutil.ReadAll(resp.Body)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "go_goroutines")
}

func expectedUsageString() string {
	var r string
	for i := range logoStr {
		r += fmt.Sprintf("%s\n", logoStr[i])
	}
	r += fmt.Sprintf("%s\n", usageStr)
	return r
}
