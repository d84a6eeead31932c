package integration

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/wzshiming/hmacd/pkg/keystore"
	"github.com/wzshiming/hmacd/pkg/middleware"
	"github.com/wzshiming/hmacd/pkg/sharedkey"
)

var ts *testServer

func TestMain(m *testing.M) {
	ts = setupTestServer()

	code := m.Run()

	ts.cleanup()
	os.Exit(code)
}

// testServer runs the full stage chain on a real listener: path sanitizing,
// shared-key authentication, then a protected handler echoing the
// authenticated account.
type testServer struct {
	listener net.Listener
	srv      *http.Server
	addr     string
}

func setupTestServer() *testServer {
	store := keystore.NewStatic()
	store.Add("alice", []byte("alice-secret-key"))
	store.Add("bob", []byte("bob-secret-key"))

	auth, err := middleware.NewAuthHandler(store)
	if err != nil {
		panic(err)
	}

	protected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, id.Account)
	})

	handler := middleware.NewPathSanitizer(auth.Middleware(protected))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}

	srv := &http.Server{Handler: handler}
	go srv.Serve(listener)

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)

	return &testServer{
		listener: listener,
		srv:      srv,
		addr:     listener.Addr().String(),
	}
}

func (ts *testServer) cleanup() {
	ts.srv.Shutdown(context.Background())
	ts.listener.Close()
}

// client returns an HTTP client signing every request with the given account.
func (ts *testServer) client(account string, secret []byte) *http.Client {
	return &http.Client{
		Transport: &sharedkey.Transport{
			Signer: sharedkey.NewSigner(account, secret),
		},
	}
}

func (ts *testServer) url(path string) string {
	return "http://" + ts.addr + path
}
