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

package c2s

import (
	"crypto/tls"
	"sync/atomic"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackal-xmpp/cmux/connection"
	"github.com/jackal-xmpp/cmux/session"
	"github.com/jackal-xmpp/cmux/stream"
	"github.com/jackal-xmpp/cmux/transport/compress"
	"github.com/jackal-xmpp/cmux/xmpp"
	"github.com/pkg/errors"
)

type inState int32

const (
	connecting inState = iota
	connected
	disconnected
)

// Hosts provides the local domains and their certificates.
type Hosts interface {
	IsLocalHost(domain string) bool
	DefaultHostName() string
	TLSConfig() *tls.Config
}

// inStream is a directly connected client stream.
// Reads are chained through the connection run queue: the next element is not
// read until the previous one has been processed, so the transport can be
// upgraded in between.
type inStream struct {
	id      session.StreamID
	cfg     Config
	conn    *connection.Socket
	sess    *session.Session
	rd      *stream.Reader
	handler *Handler
	hosts   Hosts
	logger  kitlog.Logger

	state      int32
	authorized bool // SASL completed, stream restarted afterwards
}

func newInStream(cfg Config, conn *connection.Socket, handler *Handler, hosts Hosts, logger kitlog.Logger) *inStream {
	id := session.NewStreamID()
	s := &inStream{
		id:      id,
		cfg:     cfg,
		conn:    conn,
		rd:      stream.NewReader(conn.Transport(), cfg.MaxStanzaSize),
		handler: handler,
		hosts:   hosts,
		logger:  kitlog.With(logger, "stream_id", id),
	}
	s.sess = session.New(id, conn)
	s.sess.AddCloseListener(s.onClose)
	return s
}

func (s *inStream) start() {
	reportConnectionRegistered()
	go s.doRead()
}

// Runs on its own goroutine
func (s *inStream) doRead() {
	elem, err := s.rd.Next()
	s.conn.RunQueue().Run(func() {
		if s.getState() == disconnected {
			return
		}
		if err != nil {
			s.handleReadError(err)
			return
		}
		s.handleElement(elem)
		if s.getState() != disconnected && !s.conn.IsClosed() {
			go s.doRead() // keep reading...
		}
	})
}

func (s *inStream) handleElement(elem *xmpp.Element) {
	switch s.getState() {
	case connecting:
		s.handleConnecting(elem)
	case connected:
		s.handleConnected(elem)
	}
}

func (s *inStream) handleConnecting(elem *xmpp.Element) {
	hdr, ok := stream.ParseHeader(elem)
	switch {
	case !ok || hdr.Namespace != xmpp.ClientNamespace:
		s.disconnect(xmpp.ErrStreamInvalidNamespace)
		return
	case !s.hosts.IsLocalHost(hdr.To):
		s.disconnect(xmpp.ErrStreamHostUnknown)
		return
	}
	if len(s.sess.Domain()) == 0 {
		s.sess.SetDomain(hdr.To)
	} else if s.sess.Domain() != hdr.To {
		s.disconnect(xmpp.ErrStreamHostUnknown)
		return
	}
	if err := s.openStream(); err != nil {
		level.Warn(s.logger).Log("msg", "failed to open stream", "err", err)
		return
	}
	features := xmpp.NewElementName("stream:features")
	if !s.authorized {
		features.AppendElements(s.unauthenticatedFeatures())
	} else {
		features.AppendElements(s.authenticatedFeatures())
	}
	s.conn.DeliverRawText(features.String())
	s.setState(connected)
}

func (s *inStream) unauthenticatedFeatures() []*xmpp.Element {
	var features []*xmpp.Element

	tlsAvailable := s.hosts.TLSConfig() != nil
	if tlsAvailable && !s.conn.IsSecure() {
		startTLS := xmpp.NewElementNamespace("starttls", xmpp.TLSNamespace)
		startTLS.AppendElement(xmpp.NewElementName("required"))
		features = append(features, startTLS)
	}
	// attach SASL mechanisms only over secured streams, unless TLS is unavailable
	if !tlsAvailable || s.conn.IsSecure() {
		mechanisms := xmpp.NewElementNamespace("mechanisms", xmpp.SASLNamespace)
		mechanism := xmpp.NewElementName("mechanism")
		mechanism.SetText("PLAIN")
		mechanisms.AppendElement(mechanism)
		features = append(features, mechanisms)
	}
	return features
}

func (s *inStream) authenticatedFeatures() []*xmpp.Element {
	var features []*xmpp.Element

	if !s.conn.IsCompressed() && s.cfg.Compression.Level != compress.NoCompression {
		compression := xmpp.NewElementNamespace("compression", xmpp.CompressFeatureNamespace)
		method := xmpp.NewElementName("method")
		method.SetText("zlib")
		compression.AppendElement(method)
		features = append(features, compression)
	}
	bind := xmpp.NewElementNamespace("bind", xmpp.BindNamespace)
	bind.AppendElement(xmpp.NewElementName("required"))
	features = append(features, bind)

	// [rfc6121] offer session feature for backward compatibility
	features = append(features, xmpp.NewElementNamespace("session", xmpp.SessionNamespace))
	return features
}

func (s *inStream) handleConnected(elem *xmpp.Element) {
	switch {
	case elem.Name() == "starttls" && !s.authorized:
		s.proceedStartTLS(elem)
		return

	case elem.Name() == "compress" && s.authorized:
		s.compress(elem)
		return

	case elem.Name() == "auth" && s.hosts.TLSConfig() != nil && !s.conn.IsSecure():
		// channel isn't safe enough to send credentials
		s.disconnect(xmpp.ErrStreamNotAuthorized)
		return
	}
	s.sess.IncrementClientPacketCount()
	s.handler.ProcessElement(s.sess, elem)

	if !s.authorized && s.sess.Status() == session.Authenticated {
		// wait for stream restart
		s.authorized = true
		s.setState(connecting)
	}
}

func (s *inStream) proceedStartTLS(elem *xmpp.Element) {
	tlsCfg := s.hosts.TLSConfig()
	switch {
	case len(elem.Namespace()) > 0 && elem.Namespace() != xmpp.TLSNamespace:
		s.disconnect(xmpp.ErrStreamInvalidNamespace)
		return
	case s.conn.IsSecure():
		s.disconnect(xmpp.ErrStreamNotAuthorized)
		return
	case tlsCfg == nil:
		_ = s.conn.DeliverRawTextSync(xmpp.NewElementNamespace("failure", xmpp.TLSNamespace).String())
		s.disconnect(nil)
		return
	}
	if err := s.conn.DeliverRawTextSync(xmpp.NewElementNamespace("proceed", xmpp.TLSNamespace).String()); err != nil {
		return
	}
	s.conn.StartTLS(tlsCfg)
	s.rd.Reset(s.conn.Transport())
	s.setState(connecting)

	level.Info(s.logger).Log("msg", "secured client stream")
}

func (s *inStream) compress(elem *xmpp.Element) {
	if elem.Namespace() != xmpp.CompressProtocolNamespace || s.conn.IsCompressed() {
		s.disconnect(xmpp.ErrStreamUnsupportedStanzaType)
		return
	}
	method := elem.Child("method")
	switch {
	case method == nil || len(method.Text()) == 0:
		s.compressFailure("setup-failed")
		return
	case method.Text() != "zlib":
		s.compressFailure("unsupported-method")
		return
	}
	if err := s.conn.DeliverRawTextSync(xmpp.NewElementNamespace("compressed", xmpp.CompressProtocolNamespace).String()); err != nil {
		return
	}
	s.conn.EnableCompression(s.cfg.Compression.Level)
	s.rd.Reset(s.conn.Transport())
	s.setState(connecting)

	level.Info(s.logger).Log("msg", "compressed client stream")
}

func (s *inStream) compressFailure(reason string) {
	failure := xmpp.NewElementNamespace("failure", xmpp.CompressProtocolNamespace)
	failure.AppendElement(xmpp.NewElementName(reason))
	s.conn.DeliverRawText(failure.String())
}

func (s *inStream) handleReadError(err error) {
	if errors.Is(err, stream.ErrStreamClosed) {
		s.disconnect(nil)
		return
	}
	se := stream.ToStreamError(err)
	if se != nil {
		level.Info(s.logger).Log("msg", "closing client stream", "err", err)
	}
	s.disconnect(se)
}

func (s *inStream) disconnect(se *xmpp.StreamError) {
	if s.getState() == connecting && se != nil {
		_ = s.openStream()
	}
	s.conn.Close(se)
}

func (s *inStream) openStream() error {
	domain := s.sess.Domain()
	if len(domain) == 0 {
		domain = s.hosts.DefaultHostName()
	}
	hdr := stream.Header{
		Namespace: xmpp.ClientNamespace,
		From:      domain,
		ID:        s.id.String(),
		Version:   "1.0",
	}
	return s.conn.DeliverRawTextSync(hdr.Open())
}

func (s *inStream) onClose(_ *session.Session) {
	if inState(atomic.SwapInt32(&s.state, int32(disconnected))) == disconnected {
		return
	}
	reportConnectionUnregistered()
	level.Debug(s.logger).Log("msg", "client stream closed", "addr", s.conn.Address())
}

func (s *inStream) getState() inState {
	return inState(atomic.LoadInt32(&s.state))
}

func (s *inStream) setState(st inState) {
	atomic.StoreInt32(&s.state, int32(st))
}
