package comm

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	meshPath   = "/psrs/mesh"
	headerRank = "X-Psrs-Rank"
	headerSize = "X-Psrs-Size"

	dialRetryInterval = 50 * time.Millisecond

	// How long Close waits for a peer to acknowledge the close handshake
	closeGrace = time.Second

	networkInboxDepth = 16
	wsBufferSize      = 64 * 1024
)

var errClosed = errors.New("connection closed")

// Configuration for one rank of a network group
type NetworkConfig struct {
	// Listen address of every rank, indexed by rank
	Addrs []string
	Rank  int

	// Optional listener already bound to Addrs[Rank]
	Listener net.Listener

	// Bound on establishing the mesh. Zero means the context alone decides.
	ConnectTimeout time.Duration

	Logger logrus.FieldLogger
}

// One websocket connection to a peer rank
type peerLink struct {
	peer  int
	conn  *websocket.Conn
	wmu   sync.Mutex // gorilla connections allow one concurrent writer
	inbox chan Message

	dead     chan struct{}
	deadOnce sync.Once
	err      error // valid once dead is closed
}

func (self *peerLink) fail(err error) {
	self.deadOnce.Do(func() {
		self.err = err
		close(self.dead)
	})
}

// A transport where every rank is a separate process and every pair of ranks
// shares one websocket connection. Each rank serves the mesh endpoint on its
// own address; a rank dials every lower rank and accepts every higher one.
type networkTransport struct {
	rank   int
	size   int
	links  []*peerLink // nil at this rank's own index
	server *http.Server
	log    logrus.FieldLogger

	closing   chan struct{}
	closeOnce sync.Once
}

type acceptedConn struct {
	peer int
	conn *websocket.Conn
}

// NewNetwork joins the mesh described by cfg and returns this rank's Comm. It
// blocks until a connection to every other rank is established. All ranks
// must be started with the same address list.
func NewNetwork(ctx context.Context, cfg NetworkConfig) (*Comm, error) {
	t, err := connectNetwork(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(t), nil
}

func connectNetwork(ctx context.Context, cfg NetworkConfig) (*networkTransport, error) {
	size := len(cfg.Addrs)
	if cfg.Rank < 0 || cfg.Rank >= size {
		return nil, fmt.Errorf("Rank %v out of range for %v addresses", cfg.Rank, size)
	}

	log := cfg.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	lis := cfg.Listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", cfg.Addrs[cfg.Rank])
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to listen on %v", cfg.Addrs[cfg.Rank])
		}
	}

	t := &networkTransport{
		rank:    cfg.Rank,
		size:    size,
		links:   make([]*peerLink, size),
		log:     log.WithField("rank", cfg.Rank),
		closing: make(chan struct{}),
	}

	accepted := make(chan acceptedConn, size)
	mux := http.NewServeMux()
	mux.HandleFunc(meshPath, t.acceptHandler(accepted))
	t.server = &http.Server{Handler: mux}
	go t.server.Serve(lis)

	if err := t.connect(ctx, cfg.Addrs, accepted); err != nil {
		t.Close()
		return nil, err
	}

	for _, link := range t.links {
		if link != nil {
			go t.readLoop(link)
		}
	}
	t.log.WithField("peers", size-1).Debug("Mesh established")
	return t, nil
}

func (self *networkTransport) acceptHandler(accepted chan<- acceptedConn) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		peer, err := strconv.Atoi(r.Header.Get(headerRank))
		if err != nil || peer <= self.rank || peer >= self.size {
			http.Error(w, "bad peer rank", http.StatusBadRequest)
			return
		}
		size, err := strconv.Atoi(r.Header.Get(headerSize))
		if err != nil || size != self.size {
			http.Error(w, "group size mismatch", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			self.log.WithError(err).WithField("peer", peer).Warn("Failed to upgrade peer connection")
			return
		}
		accepted <- acceptedConn{peer: peer, conn: conn}
	}
}

func (self *networkTransport) newLink(peer int, conn *websocket.Conn) *peerLink {
	return &peerLink{
		peer:  peer,
		conn:  conn,
		inbox: make(chan Message, networkInboxDepth),
		dead:  make(chan struct{}),
	}
}

func (self *networkTransport) connect(ctx context.Context, addrs []string, accepted <-chan acceptedConn) error {
	for peer := 0; peer < self.rank; peer++ {
		conn, err := self.dial(ctx, addrs[peer])
		if err != nil {
			return &Error{Op: "connect", Peer: peer, Err: err}
		}
		self.links[peer] = self.newLink(peer, conn)
		self.log.WithField("peer", peer).Debug("Connected to peer")
	}

	for remaining := self.size - 1 - self.rank; remaining > 0; {
		select {
		case a := <-accepted:
			if self.links[a.peer] != nil {
				a.conn.Close()
				return &Error{Op: "connect", Peer: a.peer, Err: errors.New("duplicate connection")}
			}
			self.links[a.peer] = self.newLink(a.peer, a.conn)
			self.log.WithField("peer", a.peer).Debug("Accepted peer")
			remaining--
		case <-ctx.Done():
			return &Error{Op: "connect", Peer: -1,
				Err: errors.Wrapf(ctx.Err(), "Still waiting for %v peers", remaining)}
		}
	}
	return nil
}

// Peers start at different times so refused connections are retried until
// the context runs out.
func (self *networkTransport) dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set(headerRank, strconv.Itoa(self.rank))
	header.Set(headerSize, strconv.Itoa(self.size))
	u := url.URL{Scheme: "ws", Host: addr, Path: meshPath}

	dialer := websocket.Dialer{
		ReadBufferSize:   wsBufferSize,
		WriteBufferSize:  wsBufferSize,
		HandshakeTimeout: 5 * time.Second,
	}

	for {
		conn, _, err := dialer.DialContext(ctx, u.String(), header)
		if err == nil {
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(err, "Gave up connecting to %v", addr)
		case <-time.After(dialRetryInterval):
		}
	}
}

func (self *networkTransport) readLoop(link *peerLink) {
	for {
		kind, buf, err := link.conn.ReadMessage()
		if err != nil {
			link.fail(err)
			return
		}
		if kind != websocket.BinaryMessage {
			link.fail(fmt.Errorf("unexpected websocket message type %v", kind))
			return
		}

		msg, err := decodeMessage(buf)
		if err != nil {
			link.fail(err)
			return
		}

		select {
		case link.inbox <- msg:
		case <-self.closing:
			link.fail(errClosed)
			return
		}
	}
}

func (self *networkTransport) Rank() int {
	return self.rank
}

func (self *networkTransport) Size() int {
	return self.size
}

func (self *networkTransport) link(peer int) (*peerLink, error) {
	if peer < 0 || peer >= self.size || peer == self.rank {
		return nil, fmt.Errorf("invalid peer %v for rank %v of %v", peer, self.rank, self.size)
	}
	return self.links[peer], nil
}

func (self *networkTransport) Send(ctx context.Context, dst int, msg Message) error {
	link, err := self.link(dst)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-link.dead:
		return errors.Wrap(link.err, "Peer connection lost")
	default:
	}

	link.wmu.Lock()
	defer link.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := link.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return link.conn.WriteMessage(websocket.BinaryMessage, encodeMessage(msg))
}

func (self *networkTransport) Recv(ctx context.Context, src int) (Message, error) {
	link, err := self.link(src)
	if err != nil {
		return Message{}, err
	}

	// Messages that arrived before the peer hung up are still delivered
	select {
	case msg := <-link.inbox:
		return msg, nil
	default:
	}

	select {
	case msg := <-link.inbox:
		return msg, nil
	case <-link.dead:
		select {
		case msg := <-link.inbox:
			return msg, nil
		default:
		}
		return Message{}, errors.Wrap(link.err, "Peer connection lost")
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close performs the websocket close handshake with every peer and stops
// serving the mesh endpoint.
func (self *networkTransport) Close() error {
	self.closeOnce.Do(func() {
		close(self.closing)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		for _, link := range self.links {
			if link != nil {
				link.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
			}
		}
		for _, link := range self.links {
			if link == nil {
				continue
			}
			select {
			case <-link.dead:
			case <-time.After(closeGrace):
			}
			link.conn.Close()
		}

		if self.server != nil {
			self.server.Close()
		}
	})
	return nil
}
