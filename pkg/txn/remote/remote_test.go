package remote

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/txn"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestStatusRequestWireRoundTrip(t *testing.T) {
	id, err := txn.IDFromString("0123456789abcdef")
	if err != nil {
		t.Fatalf("IDFromString failed: %v", err)
	}
	ceiling := keycodec.HybridTime{Physical: 5000, Logical: 7}

	gotID, gotCeiling, err := decodeStatusRequest(encodeStatusRequest(id, ceiling))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if gotID != id || gotCeiling != ceiling {
		t.Errorf("round trip mismatch: %s %s", gotID, gotCeiling)
	}

	if _, _, err := decodeStatusRequest([]byte{0xFF}); err == nil {
		t.Error("expected an error for malformed bytes")
	}
	if _, _, err := decodeStatusRequest(nil); err == nil {
		t.Error("expected an error for a request without a transaction id")
	}
}

func TestStatusResponseWireRoundTrip(t *testing.T) {
	cases := []txn.StatusResult{
		{Status: txn.StatusPending},
		{Status: txn.StatusCommitted, CommitTime: keycodec.FromMicros(3500)},
		{Status: txn.StatusAborted},
	}
	for _, want := range cases {
		got, err := decodeStatusResponse(encodeStatusResponse(want))
		if err != nil {
			t.Fatalf("decode %s failed: %v", want.Status, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}

	if _, err := decodeStatusResponse(nil); err == nil {
		t.Error("expected an error for a response without a status")
	}
}

func startTestServer(t *testing.T, local txn.StatusAuthority) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(local)
	go func() {
		if err := srv.Serve(lis); err != nil {
			t.Errorf("Serve failed: %v", err)
		}
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRemoteAuthority(t *testing.T) {
	committed, err := txn.IDFromString("committed_______")
	if err != nil {
		t.Fatalf("IDFromString failed: %v", err)
	}
	pending, err := txn.IDFromString("pending_________")
	if err != nil {
		t.Fatalf("IDFromString failed: %v", err)
	}
	unknown, err := txn.IDFromString("unknown_________")
	if err != nil {
		t.Fatalf("IDFromString failed: %v", err)
	}

	local := txn.NewInMemoryAuthority()
	local.Commit(committed, keycodec.FromMicros(3500))
	local.Begin(pending)

	authority := New(startTestServer(t, local))
	ctx := context.Background()
	ceiling := keycodec.FromMicros(5000)

	res, err := authority.RequestStatus(ctx, committed, ceiling)
	if err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if res.Status != txn.StatusCommitted || res.CommitTime.Physical != 3500 {
		t.Errorf("expected COMMITTED at 3500, got %s %s", res.Status, res.CommitTime)
	}

	res, err = authority.RequestStatus(ctx, pending, ceiling)
	if err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if res.Status != txn.StatusPending {
		t.Errorf("expected PENDING, got %s", res.Status)
	}

	// The service's not-found maps back to the retryable sentinel
	if _, err := authority.RequestStatus(ctx, unknown, ceiling); !errors.Is(err, txn.ErrStatusUnknown) {
		t.Errorf("expected ErrStatusUnknown, got %v", err)
	}
}

func TestRemoteAuthorityResolvesIntents(t *testing.T) {
	id, err := txn.IDFromString("committed_______")
	if err != nil {
		t.Fatalf("IDFromString failed: %v", err)
	}
	local := txn.NewInMemoryAuthority()
	local.Commit(id, keycodec.FromMicros(3500))

	authority := New(startTestServer(t, local))

	// The remote authority satisfies the same contract the resolver
	// consumes from the in-memory double
	r := txn.NewResolver(authority, keycodec.FromMicros(5000), nil)
	res, err := r.Resolve(context.Background(), txn.Intent{
		Strength: keycodec.StrongIntent,
		Written:  keycodec.Version{Time: keycodec.FromMicros(500)},
		Owner:    id,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Visible || res.Effective.Time.Physical != 3500 {
		t.Errorf("expected a visible resolution at 3500, got %+v", res)
	}
}
