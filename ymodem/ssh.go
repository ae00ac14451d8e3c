package ymodem

import (
	"context"
	"io"

	"golang.org/x/crypto/ssh"
)

// DefaultRemoteReceiver is the command started on the remote host.
const DefaultRemoteReceiver = "rb --ymodem"

// SSHSession wraps an SSH session for YMODEM uploads.
// The remote receiver's stdin/stdout form the channel.
type SSHSession struct {
	*Session
	sshSession *ssh.Session
	stdin      io.WriteCloser
	stream     *StreamChannel
	stderr     io.Reader
}

// NewSSHSession creates a YMODEM session from an SSH session.
func NewSSHSession(sshSession *ssh.Session, opts ...Option) (*SSHSession, error) {
	stdin, err := sshSession.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	stderr, err := sshSession.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	stream := NewStreamChannel(stdout, stdin)

	return &SSHSession{
		Session:    NewSession(stream, opts...),
		sshSession: sshSession,
		stdin:      stdin,
		stream:     stream,
		stderr:     stderr,
	}, nil
}

// Upload starts command on the remote host (DefaultRemoteReceiver if
// empty), sends filename to it and waits for the command to exit.
func (s *SSHSession) Upload(ctx context.Context, command, filename string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if command == "" {
		command = DefaultRemoteReceiver
	}
	if err := s.sshSession.Start(command); err != nil {
		return nil, wrapError(ErrChannelIO, "start "+command, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.sshSession.Wait()
	}()

	res, err := s.SendFile(ctx, filename)

	// Closing stdin lets the receiver exit
	s.stdin.Close()

	select {
	case werr := <-done:
		if err == nil && werr != nil {
			err = wrapError(ErrChannelIO, "remote receiver", werr)
		}
	case <-ctx.Done():
		if err == nil {
			err = wrapError(ErrCancelled, "waiting for remote receiver", ctx.Err())
		}
	}

	return res, err
}

// Stderr returns the stderr reader for monitoring remote command output.
func (s *SSHSession) Stderr() io.Reader {
	return s.stderr
}

// Close stops the channel pump and closes the SSH session.
func (s *SSHSession) Close() error {
	s.stream.Close()
	s.stdin.Close()
	return s.sshSession.Close()
}
