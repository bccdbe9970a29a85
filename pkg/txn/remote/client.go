package remote

import (
	"context"
	"fmt"

	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/txn"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const (
	serviceName     = "dockv.txn.StatusAuthority"
	methodGetStatus = "/" + serviceName + "/GetStatus"
)

// Authority is the gRPC-backed StatusAuthority. It is safe for
// concurrent use by many iterators; the underlying connection multiplexes
// calls.
type Authority struct {
	conn    *grpc.ClientConn
	ownConn bool
}

var _ txn.StatusAuthority = (*Authority)(nil)

// New wraps an existing client connection. The caller keeps ownership of
// the connection.
func New(conn *grpc.ClientConn) *Authority {
	return &Authority{conn: conn}
}

// Dial connects to a status service endpoint without transport security
// and returns an Authority owning the connection.
func Dial(endpoint string, opts ...grpc.DialOption) (*Authority, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial status authority %s: %w", endpoint, err)
	}
	return &Authority{conn: conn, ownConn: true}, nil
}

// RequestStatus implements txn.StatusAuthority. Transport failures and a
// transaction the service does not know are both reported as
// ErrStatusUnknown: in either case the outcome is indeterminate and the
// caller owns the retry.
func (a *Authority) RequestStatus(ctx context.Context, id txn.ID, readCeiling keycodec.HybridTime) (txn.StatusResult, error) {
	req := rawMessage(encodeStatusRequest(id, readCeiling))
	var resp rawMessage

	err := a.conn.Invoke(ctx, methodGetStatus, &req, &resp, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.Unavailable, codes.DeadlineExceeded:
			return txn.StatusResult{}, fmt.Errorf("status of %s: %v: %w", id, err, txn.ErrStatusUnknown)
		default:
			return txn.StatusResult{}, fmt.Errorf("status of %s: %w", id, err)
		}
	}

	res, err := decodeStatusResponse(resp)
	if err != nil {
		return txn.StatusResult{}, fmt.Errorf("status of %s: %w", id, err)
	}
	return res, nil
}

// Close releases the connection if this Authority owns it.
func (a *Authority) Close() error {
	if !a.ownConn {
		return nil
	}
	return a.conn.Close()
}
