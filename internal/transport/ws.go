package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/rfx/internal/model"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("transport closed")

const writeWait = 10 * time.Second

// WSClient is a Transport backed by a websocket connection to a Server.
type WSClient struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	last    model.RawSnapshot
	pending map[string]chan Result
	err     error

	snaps     hub[model.RawSnapshot]
	meterSubs hub[model.MeterFrame]

	closeOnce sync.Once
	done      chan struct{}
}

// DialWS connects to a bridge server's websocket endpoint, e.g.
// ws://127.0.0.1:7400/ws.
func DialWS(ctx context.Context, url string, logger *slog.Logger) (*WSClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &WSClient{
		conn:    conn,
		logger:  logger,
		pending: map[string]chan Result{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	defer close(c.done)
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.fail(err)
			return
		}
		switch env.Type {
		case MsgSnapshot:
			if env.Snapshot == nil {
				continue
			}
			c.mu.Lock()
			c.last = env.Snapshot
			c.mu.Unlock()
			c.snaps.emit(env.Snapshot)
		case MsgMeters:
			if env.Meters != nil {
				c.meterSubs.emit(*env.Meters)
			}
		case MsgResult:
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			delete(c.pending, env.ID)
			c.mu.Unlock()
			if ok && env.Result != nil {
				ch <- *env.Result
			}
		default:
			c.logger.Debug("ignoring websocket message", "type", env.Type)
		}
	}
}

// fail records the terminal read error and releases every waiter.
func (c *WSClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
			err = ErrClosed
		}
		c.err = err
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *WSClient) request(ctx context.Context, env Envelope) (Result, error) {
	env.ID = strconv.FormatInt(c.nextID.Add(1), 10)
	ch := make(chan Result, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return Result{}, err
	}
	c.pending[env.ID] = ch
	c.mu.Unlock()

	if err := c.write(env); err != nil {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
		return Result{}, err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
		return Result{}, ctx.Err()
	case res, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return Result{}, fmt.Errorf("%s %s: %w", env.Type, env.ID, err)
		}
		return res, nil
	}
}

func (c *WSClient) write(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, err)
	}
	return nil
}

// Boot implements Transport.
func (c *WSClient) Boot(ctx context.Context) (Boot, error) {
	res, err := c.request(ctx, Envelope{Type: MsgBoot})
	if err != nil {
		return Boot{}, err
	}
	if !res.OK {
		return Boot{}, fmt.Errorf("boot: %s", res.Error)
	}
	var b Boot
	if res.Seq != nil {
		b.Seq = *res.Seq
	}
	return b, nil
}

// Snapshot implements Transport.
func (c *WSClient) Snapshot() model.RawSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Subscribe implements Transport.
func (c *WSClient) Subscribe(fn func(model.RawSnapshot)) func() {
	return c.snaps.add(fn)
}

// SubscribeMeters implements MeterSource.
func (c *WSClient) SubscribeMeters(fn func(model.MeterFrame)) func() {
	return c.meterSubs.add(fn)
}

// Syscall implements Transport.
func (c *WSClient) Syscall(ctx context.Context, call model.Call) error {
	res, err := c.request(ctx, Envelope{Type: MsgSyscall, Call: &call})
	if err != nil {
		return err
	}
	if !res.OK {
		return &RejectedError{Name: call.Name, Reason: res.Error}
	}
	return nil
}

// Done is closed when the connection's read loop exits.
func (c *WSClient) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame, closes the connection and waits for the read
// loop to exit.
func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}
