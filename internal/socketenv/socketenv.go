// Package socketenv implements env.Env over socket.io. Every rank connects
// to a coordinator, emits its contribution to each collective and waits for
// the coordinator to broadcast the total.
//
// Wire protocol, one request per collective call:
//
//	emit  "sum_over_ranks"        {"rank", "num_ranks", "seq", "value"}
//	recv  "sum_over_ranks_result" {"seq", "total"}
//
// seq counts collective calls from 1 on each rank, so the coordinator can
// match the contributions of one round. Integers travel as decimal strings
// to keep 64-bit precision.
package socketenv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/env"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	ReduceEvent = "sum_over_ranks"
	ResultEvent = "sum_over_ranks_result"

	defaultTimeout = 30 * time.Second
)

// Config describes the coordinator and this rank's place in the group.
type Config struct {
	URL                string
	Namespace          string
	Rank               int
	NumRanks           int
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Env is a connected rank.
type Env struct {
	cfg    Config
	client *socket.Socket

	mu      sync.Mutex
	seq     int64
	pending map[int64]chan result
}

var _ env.Env = (*Env)(nil)

type result struct {
	total int64
	err   error
}

// Dial connects to the coordinator and returns once the connection is up.
func Dial(ctx context.Context, cfg Config) (*Env, error) {
	if cfg.NumRanks < 1 || cfg.Rank < 0 || cfg.Rank >= cfg.NumRanks {
		return nil, fmt.Errorf("invalid rank %d of %d", cfg.Rank, cfg.NumRanks)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}

	logger := ctxlog.FromContext(ctx).With("env", "socketio", "url", cfg.URL, "rank", cfg.Rank)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("coordinator URL %q needs a scheme and a host", cfg.URL)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	e := &Env{cfg: cfg, client: io, pending: make(map[int64]chan result)}
	io.On(types.EventName(ResultEvent), func(data ...any) {
		if len(data) == 0 {
			logger.Warn("Result event without payload")
			return
		}
		seq, total, err := decodeResult(data[0])
		if err != nil {
			logger.Warn("Dropping malformed result", "error", err)
			return
		}
		e.deliver(seq, result{total: total})
	})

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to coordinator", "sid", io.Id())
		signal(connectChan, nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if cerr, ok := errs[0].(error); ok {
				err = cerr
			}
		}
		signal(connectChan, err)
	})

	logger.Debug("Connecting to coordinator")
	io.Connect()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return e, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", cfg.Timeout)
	}
}

// signal reports the first connection outcome; later ones are dropped.
func signal(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func (e *Env) Rank() int     { return e.cfg.Rank }
func (e *Env) NumRanks() int { return e.cfg.NumRanks }

// SumOverRanks implements env.Env.
func (e *Env) SumOverRanks(ctx context.Context, v int64) (int64, error) {
	if e.cfg.NumRanks == 1 {
		return v, nil
	}

	ch := make(chan result, 1)
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.pending[seq] = ch
	e.mu.Unlock()
	defer e.forget(seq)

	e.client.Emit(ReduceEvent, encodeRequest(e.cfg.Rank, e.cfg.NumRanks, seq, v))

	timer := time.NewTimer(e.cfg.Timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.total, res.err
	case <-ctx.Done():
		return 0, fmt.Errorf("collective %d: %w", seq, ctx.Err())
	case <-timer.C:
		return 0, fmt.Errorf("timed out after %v waiting for collective %d", e.cfg.Timeout, seq)
	}
}

// Close disconnects from the coordinator. Pending collectives fail.
func (e *Env) Close() error {
	e.client.Disconnect()
	e.mu.Lock()
	defer e.mu.Unlock()
	for seq, ch := range e.pending {
		ch <- result{err: errors.New("connection closed")}
		delete(e.pending, seq)
	}
	return nil
}

func (e *Env) deliver(seq int64, res result) {
	e.mu.Lock()
	ch, ok := e.pending[seq]
	delete(e.pending, seq)
	e.mu.Unlock()
	if ok {
		ch <- res
	}
}

func (e *Env) forget(seq int64) {
	e.mu.Lock()
	delete(e.pending, seq)
	e.mu.Unlock()
}

func encodeRequest(rank, numRanks int, seq, v int64) map[string]any {
	return map[string]any{
		"rank":      rank,
		"num_ranks": numRanks,
		"seq":       strconv.FormatInt(seq, 10),
		"value":     strconv.FormatInt(v, 10),
	}
}

func decodeResult(data any) (seq, total int64, err error) {
	m, ok := data.(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("result payload is %T, want an object", data)
	}
	if seq, err = decodeInt(m, "seq"); err != nil {
		return 0, 0, err
	}
	if total, err = decodeInt(m, "total"); err != nil {
		return 0, 0, err
	}
	return seq, total, nil
}

// decodeInt accepts decimal strings and JSON numbers holding integers.
func decodeInt(m map[string]any, key string) (int64, error) {
	switch v := m[key].(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return n, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("field %q: %v is not an integer", key, v)
		}
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("field %q is missing", key)
	default:
		return 0, fmt.Errorf("field %q has type %T", key, v)
	}
}
