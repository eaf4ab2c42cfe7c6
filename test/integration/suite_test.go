//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/checks"
	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/fetch"
	"github.com/tordoctor/doctor/internal/health"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/notifier"
	"github.com/tordoctor/doctor/internal/suppression"
	"github.com/tordoctor/doctor/internal/types"
)

// Documents in testdata are valid at this time.
var documentTime = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

// webhookReceiver collects notification envelopes.
type webhookReceiver struct {
	mu        sync.Mutex
	envelopes []notifier.WebhookEnvelope
}

func (w *webhookReceiver) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var env notifier.WebhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	w.mu.Lock()
	w.envelopes = append(w.envelopes, env)
	w.mu.Unlock()
	rw.WriteHeader(http.StatusAccepted)
}

func (w *webhookReceiver) received() []notifier.WebhookEnvelope {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]notifier.WebhookEnvelope(nil), w.envelopes...)
}

// CycleSuite runs complete check cycles against authorities served over HTTP.
type CycleSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	authority *httptest.Server
	webhook   *httptest.Server
	receiver  *webhookReceiver
	registry  *directory.Registry

	storeDir string
	store    *suppression.PebbleStore
	manager  *suppression.Manager
	runner   *health.Runner
}

func TestCycleSuite(t *testing.T) {
	suite.Run(t, new(CycleSuite))
}

// SetupSuite starts one reachable authority (moria1) and points gabelmoo at
// a closed port.
func (s *CycleSuite) SetupSuite() {
	s.logger = zap.NewNop()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	consensus, err := os.ReadFile(filepath.Join("testdata", "consensus.txt"))
	require.NoError(s.T(), err)
	vote, err := os.ReadFile(filepath.Join("testdata", "vote.txt"))
	require.NoError(s.T(), err)

	mux := http.NewServeMux()
	mux.HandleFunc(fetch.ConsensusResource, func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, _ = zw.Write(consensus)
		_ = zw.Close()
		w.Header().Set("Content-Encoding", "deflate")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc(fetch.VoteResource, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(vote)
	})
	s.authority = httptest.NewServer(mux)

	s.receiver = &webhookReceiver{}
	s.webhook = httptest.NewServer(s.receiver)

	host, port := splitHostPort(s.T(), s.authority.Listener.Addr().String())
	closed := closedPort(s.T())
	s.registry = directory.MustNew([]types.Authority{
		{Nickname: "moria1", Address: host, DirPort: port, ORPort: 9101,
			Fingerprint: "9695DFC35FFEB861329B9F1AB04C46397020CE31", V3Ident: "D586D18309DED4CD6D57C18FDB97EFA96D330566"},
		{Nickname: "gabelmoo", Address: "127.0.0.1", DirPort: closed, ORPort: 443,
			Fingerprint: "F2044413DAC2E02E3D6BCF4735A19BCA1DE97281", V3Ident: "ED03BB616EB2F60BEC80151114BB25CEF515B226"},
	})
}

// SetupTest builds a fresh cycle over a new Pebble store.
func (s *CycleSuite) SetupTest() {
	clock := func() time.Time { return documentTime }

	client := fetch.NewClient(s.logger, fetch.ClientConfig{Timeout: 5 * time.Second})
	// Local downloads are too fast for a meaningful median.
	fetcher := fetch.NewFetcher(s.logger, client, s.registry, fetch.Options{LatencyFactor: 1000, ClockSkewLimit: time.Hour})

	engine := checks.NewEngine(s.logger)
	engine.SetClock(clock)
	require.NoError(s.T(), checks.Register(engine, checks.Env{
		Registry:             s.registry,
		BandwidthAuthorities: []string{"moria1"},
	}, nil))

	s.storeDir = filepath.Join(s.T().TempDir(), "suppression.pebble")
	store, err := suppression.OpenPebbleStore(s.storeDir, s.logger)
	require.NoError(s.T(), err)
	s.store = store

	renderer := issue.NewRenderer(issue.DefaultMessages(), s.logger)
	contacts := directory.NewContacts(map[string]string{"gabelmoo": "gabelmoo@example.org"}, nil)
	s.manager = suppression.NewManager(store, renderer, issue.NewDurations(nil), contacts, s.logger)
	s.manager.SetClock(clock)

	sender, err := notifier.NewWebhookSender(s.logger, notifier.WebhookSenderConfig{URL: s.webhook.URL})
	require.NoError(s.T(), err)
	opts := notifier.DefaultDispatcherOptions()
	opts.To = []string{"ops@example.org"}
	opts.Senders = []notifier.Sender{sender}
	dispatcher := notifier.NewDispatcher(s.logger, s.manager, notifier.NewRouter(renderer, s.manager), opts)

	s.runner = health.NewRunner(s.logger, fetcher, engine, nil, dispatcher, s.manager)
	s.runner.SetClock(clock)

	s.receiver.mu.Lock()
	s.receiver.envelopes = nil
	s.receiver.mu.Unlock()
}

func (s *CycleSuite) TearDownTest() {
	if s.store != nil {
		require.NoError(s.T(), s.store.Close())
		s.store = nil
	}
}

func (s *CycleSuite) TearDownSuite() {
	s.authority.Close()
	s.webhook.Close()
	s.cancel()
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// closedPort returns a port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port := splitHostPort(t, l.Addr().String())
	require.NoError(t, l.Close())
	return port
}
