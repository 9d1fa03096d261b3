package services

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"wp-fleet-manager/utils"
)

// SSHTarget is where a website's WordPress install can be reached over SSH.
type SSHTarget struct {
	Host           string
	User           string
	Password       string
	KnownHostsFile string
	Timeout        time.Duration
}

func (t SSHTarget) address() string {
	if _, _, err := net.SplitHostPort(t.Host); err == nil {
		return t.Host
	}
	return net.JoinHostPort(t.Host, "22")
}

func (t SSHTarget) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if t.KnownHostsFile == "" {
		utils.LogWarn("No known_hosts file configured; skipping host key verification for %s", t.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(t.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// GetSSHClient establishes an SSH connection to the website's host.
func GetSSHClient(target SSHTarget) (*ssh.Client, error) {
	hostKeyCallback, err := target.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sshConfig := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.Password(target.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	client, err := ssh.Dial("tcp", target.address(), sshConfig)
	if err != nil {
		utils.LogError("Failed to dial SSH %s: %v", target.address(), err)
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	utils.LogInfo("SSH connection established to %s", target.address())
	return client, nil
}

// RunSSHCommand executes a command on the remote host and returns its
// stdout and stderr.
func RunSSHCommand(client *ssh.Client, command string) (string, string, error) {
	session, err := client.NewSession()
	if err != nil {
		utils.LogError("Failed to create SSH session: %v", err)
		return "", "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf strings.Builder
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	utils.LogInfo("Executing SSH command: %s", redact(command))
	if err := session.Run(command); err != nil {
		utils.LogError("SSH command failed: %v, stderr: %s", err, stderrBuf.String())
		return stdoutBuf.String(), stderrBuf.String(), fmt.Errorf("SSH command failed: %w", err)
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

func GetSFTPClient(client *ssh.Client) (*sftp.Client, error) {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		utils.LogError("Failed to create SFTP client: %v", err)
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	return sftpClient, nil
}

// UploadFile writes content to remotePath over SFTP.
func UploadFile(sftpClient *sftp.Client, remotePath string, content io.Reader) error {
	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		utils.LogError("Failed to create remote file %s: %v", remotePath, err)
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer remoteFile.Close()

	if _, err := io.Copy(remoteFile, content); err != nil {
		utils.LogError("Failed to write to remote file %s: %v", remotePath, err)
		return fmt.Errorf("failed to write to remote file: %w", err)
	}
	utils.LogInfo("File uploaded to %s", remotePath)
	return nil
}

// redact hides the API key argument of wp option update commands.
func redact(command string) string {
	const marker = "wp option update wrms_api_key "
	if i := strings.Index(command, marker); i >= 0 {
		return command[:i+len(marker)] + "'***'"
	}
	return command
}
