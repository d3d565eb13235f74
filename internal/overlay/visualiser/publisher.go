package visualiser

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/banshee-data/overlay/internal/overlay/pipeline"
)

// Config holds configuration for the stream server.
type Config struct {
	// ListenAddr is the gRPC address, e.g. "localhost:50051".
	ListenAddr string
	// MaxClients caps concurrent streams; 0 means unlimited.
	MaxClients int
	// ClientBuffer is the per-client frame queue length.
	ClientBuffer int
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50051",
		MaxClients:   8,
		ClientBuffer: 4,
	}
}

var errTooManyClients = errors.New("too many stream clients")

// Publisher fans processed frames out to stream clients. It implements
// pipeline.Publisher; Publish never blocks the frame loop. A client whose
// queue is full misses that frame.
type Publisher struct {
	config Config

	server   *grpc.Server
	listener net.Listener

	mu      sync.RWMutex
	clients map[uint64]*clientStream
	nextID  uint64

	frames  atomic.Uint64
	dropped atomic.Uint64
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ pipeline.Publisher = (*Publisher)(nil)

type clientStream struct {
	id      uint64
	request StreamRequest
	frameCh chan *FrameBundle
}

// NewPublisher returns a stopped publisher.
func NewPublisher(cfg Config) *Publisher {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:  cfg,
		clients: make(map[uint64]*clientStream),
	}
}

// Start listens on Config.ListenAddr and serves the TrackStream service.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.ListenAddr, err)
	}
	return p.Serve(lis)
}

// Serve serves the TrackStream service on lis in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("visualiser: publisher already running")
	}
	p.listener = lis
	p.stopCh = make(chan struct{})
	p.server = grpc.NewServer()
	RegisterTrackStreamServer(p.server, NewServer(p))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Printf("[Visualiser] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[Visualiser] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every stream and shuts the server down.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	// Streams never finish on their own; release them before draining.
	close(p.stopCh)
	p.server.GracefulStop()
	p.wg.Wait()
	log.Printf("[Visualiser] gRPC server stopped")
}

// Publish implements pipeline.Publisher.
func (p *Publisher) Publish(res pipeline.Result) {
	p.PublishBundle(BundleFromResult(res))
}

// PublishBundle offers b to every connected client.
func (p *Publisher) PublishBundle(b *FrameBundle) {
	p.frames.Add(1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.clients {
		select {
		case c.frameCh <- c.request.filter(b):
		default:
			p.dropped.Add(1)
		}
	}
}

func (p *Publisher) addClient(req StreamRequest) (*clientStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil, errTooManyClients
	}
	p.nextID++
	c := &clientStream{
		id:      p.nextID,
		request: req,
		frameCh: make(chan *FrameBundle, p.config.ClientBuffer),
	}
	p.clients[c.id] = c
	log.Printf("[Visualiser] client %d connected (total: %d)", c.id, len(p.clients))
	return c, nil
}

func (p *Publisher) removeClient(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.clients[id]; ok {
		delete(p.clients, id)
		log.Printf("[Visualiser] client %d disconnected (remaining: %d)", id, len(p.clients))
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"`
	Clients int    `json:"clients"`
	Running bool   `json:"running"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	n := len(p.clients)
	p.mu.RUnlock()
	return PublisherStats{
		Frames:  p.frames.Load(),
		Dropped: p.dropped.Load(),
		Clients: n,
		Running: p.running.Load(),
	}
}

// Addr returns the listener address once serving.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}
