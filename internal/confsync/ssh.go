package confsync

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const sshPushTimeout = 30 * time.Second

// SSHSyncer writes the configuration file over an SSH session on the engine
// host. The document is shipped base64-encoded through stdin of a remote
// `base64 -d > <path>` so no byte of it ever meets shell escaping.
type SSHSyncer struct {
	addr       string
	remotePath string
	config     *ssh.ClientConfig
	logger     *slog.Logger
}

func NewSSHSyncer(host string, port int, user, password, remotePath string, logger *slog.Logger) *SSHSyncer {
	return &SSHSyncer{
		addr:       fmt.Sprintf("%s:%d", host, port),
		remotePath: remotePath,
		config: &ssh.ClientConfig{
			User: user,
			Auth: []ssh.AuthMethod{ssh.Password(password)},
			// The engine host is a LAN appliance whose key changes on every
			// reimage; pinning would strand the control plane.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         5 * time.Second,
		},
		logger: logger,
	}
}

func (s *SSHSyncer) Target() string {
	return fmt.Sprintf("ssh://%s%s", s.addr, s.remotePath)
}

// Push writes the document to the remote path. Bounded by ctx and an overall
// push timeout; a push abandoned on timeout finishes or fails on its own
// without holding the caller.
func (s *SSHSyncer) Push(ctx context.Context, doc []byte) error {
	ctx, cancel := context.WithTimeout(ctx, sshPushTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.push(doc)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return &SyncError{Target: s.Target(), Err: err}
		}
		s.logger.Info("durable config push complete", "target", s.Target(), "bytes", len(doc))
		return nil
	case <-ctx.Done():
		return &SyncError{Target: s.Target(), Err: ctx.Err()}
	}
}

func (s *SSHSyncer) push(doc []byte) error {
	client, err := ssh.Dial("tcp", s.addr, s.config)
	if err != nil {
		return fmt.Errorf("dialing engine host: %w", err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()

	encoded := base64.StdEncoding.EncodeToString(doc)
	session.Stdin = strings.NewReader(encoded)

	if err := session.Run(fmt.Sprintf("base64 -d > %q", s.remotePath)); err != nil {
		return fmt.Errorf("remote write: %w", err)
	}
	return nil
}
