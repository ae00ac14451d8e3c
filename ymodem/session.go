package ymodem

import (
	"context"
	"io"
	"os"
	"time"
)

// File is an open source file.
type File interface {
	io.ReadSeeker
	io.Closer
	Stat() (os.FileInfo, error)
}

// Session represents a YMODEM upload session over one channel.
// It provides a high-level API for sending files.
type Session struct {
	ch Channel

	config    *Config
	callbacks *Callbacks
	logger    Logger
	ctx       context.Context

	openFile func(name string) (File, error)
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		s.config = config
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = callbacks
	}
}

// WithContext sets the default context used when a nil one is passed.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithLogger sets a logger for protocol debugging.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithFileOpener replaces os.Open for SendFile.
func WithFileOpener(open func(name string) (File, error)) Option {
	return func(s *Session) {
		s.openFile = open
	}
}

// NewSession creates a new YMODEM session.
func NewSession(ch Channel, opts ...Option) *Session {
	s := &Session{
		ch:     ch,
		config: DefaultConfig(),
		logger: NoopLogger{},
		ctx:    context.Background(),
		openFile: func(name string) (File, error) {
			return os.Open(name)
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SendFile opens the named file, sends it and closes it. The file is
// closed on every path, including failures mid-transfer.
func (s *Session) SendFile(ctx context.Context, filename string) (res *Result, err error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	f, err := s.openFile(filename)
	if err != nil {
		return nil, wrapError(ErrFileRead, "open "+filename, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("close failed", "file", filename, "error", cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, wrapError(ErrFileRead, "stat "+filename, err)
	}
	if info.IsDir() {
		return nil, NewError(ErrFileRead, filename+" is a directory")
	}

	return s.SendReader(ctx, filename, f, info.Size(), info.ModTime())
}

// SendReader sends size bytes from r under name. The caller keeps
// ownership of r.
func (s *Session) SendReader(ctx context.Context, name string, r io.ReadSeeker, size int64, modTime time.Time) (*Result, error) {
	if ctx == nil {
		ctx = s.ctx
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	t := NewTransmitter(s.ch, s.config, s.callbacks, s.logger)
	return t.Send(ctx, FileSource{
		Name:    name,
		Size:    size,
		ModTime: modTime,
		Reader:  r,
	})
}
