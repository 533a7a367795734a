package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	streamDataMethod = "/apibara.node.v1alpha2.Stream/StreamData"

	maxRecvMsgSize = 128 << 20
)

var streamDataDesc = &grpc.StreamDesc{
	StreamName:    "StreamData",
	ServerStreams: true,
	ClientStreams: true,
}

// rawFrame carries pre-serialized protobuf bytes through grpc.
type rawFrame struct {
	b []byte
}

// rawCodec hands frames to grpc untouched. It reports the "proto" name so
// the content-type matches what protobuf servers expect.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("raw codec: unexpected message type %T", v)
	}
	return f.b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("raw codec: unexpected message type %T", v)
	}
	f.b = append(f.b[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }

// GRPCClient talks to an Apibara DNA server.
type GRPCClient struct {
	conn   *grpc.ClientConn
	token  string
	logger *zap.Logger
}

var _ Client = (*GRPCClient)(nil)

// NewGRPCClient connects to endpoint, an http(s) URL or a bare host:port.
// https and bare host:port use TLS; http is plaintext.
func NewGRPCClient(endpoint, token string, logger *zap.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	target, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	var creds credentials.TransportCredentials
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		creds = insecure.NewCredentials()
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating stream client for %s: %w", target, err)
	}

	return &GRPCClient{
		conn:   conn,
		token:  token,
		logger: logger.Named("stream"),
	}, nil
}

func parseEndpoint(endpoint string) (target string, secure bool, err error) {
	u, err := url.Parse(endpoint)
	if err == nil && (u.Scheme == "passthrough" || u.Scheme == "unix") {
		// raw grpc targets, plaintext
		return endpoint, false, nil
	}
	if err != nil || u.Host == "" {
		if _, _, splitErr := net.SplitHostPort(endpoint); splitErr == nil {
			return endpoint, true, nil
		}
		return "", false, fmt.Errorf("invalid stream endpoint %q", endpoint)
	}

	switch u.Scheme {
	case "https":
		secure = true
	case "http":
		secure = false
	default:
		return "", false, fmt.Errorf("unsupported stream endpoint scheme %q", u.Scheme)
	}

	host := u.Host
	if u.Port() == "" {
		if secure {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	return host, secure, nil
}

// Open starts a StreamData call and sends cfg as the first request.
// The stream lives until ctx is cancelled or Close is called.
func (c *GRPCClient) Open(ctx context.Context, cfg Configuration) (Stream, error) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	ctx, cancel := context.WithCancel(ctx)

	cs, err := c.conn.NewStream(ctx, streamDataDesc, streamDataMethod, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if err := cs.SendMsg(&rawFrame{b: encodeRequest(cfg)}); err != nil {
		cancel()
		return nil, fmt.Errorf("sending stream configuration: %w", err)
	}

	start := uint64(0)
	if cfg.StartingCursor != nil {
		start = cfg.StartingCursor.OrderKey
	}
	c.logger.Debug("Stream opened",
		zap.Uint64("streamID", cfg.StreamID),
		zap.Uint64("cursor", start),
		zap.Stringer("finality", cfg.Finality))

	return &grpcStream{cs: cs, cancel: cancel}, nil
}

// Close releases the underlying connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

type grpcStream struct {
	cs        grpc.ClientStream
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *grpcStream) Next(ctx context.Context) (*Message, error) {
	type result struct {
		msg *Message
		err error
	}
	done := make(chan result, 1)

	go func() {
		var frame rawFrame
		if err := s.cs.RecvMsg(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamClosed
			}
			done <- result{err: err}
			return
		}
		msg, err := decodeResponse(frame.b)
		done <- result{msg: msg, err: err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

func (s *grpcStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.cs.CloseSend()
		s.cancel()
	})
	return nil
}
