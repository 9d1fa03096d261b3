package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"wp-fleet-manager/models"
	"wp-fleet-manager/utils"
)

var ErrNoSSHDetails = errors.New("website has no SSH details")

// ProvisionOptions locates the companion plugin archive and tunes SSH.
type ProvisionOptions struct {
	PluginArchive  string
	KnownHostsFile string
	SSHTimeout     time.Duration
}

// ProvisionResult is the transcript of one provisioning run.
type ProvisionResult struct {
	Steps []string `json:"steps"`
}

// Provisioner installs and activates the companion plugin on a website over
// SSH, then stores the website's API key in the plugin settings.
type Provisioner struct {
	opts ProvisionOptions
}

func NewProvisioner(opts ProvisionOptions) *Provisioner {
	return &Provisioner{opts: opts}
}

// Provision uploads the plugin archive, installs it with WP-CLI, and writes
// the API key option. The uploaded archive is removed on every path.
func (p *Provisioner) Provision(ctx context.Context, w *models.Website) (*ProvisionResult, error) {
	if !w.HasSSH() {
		return nil, ErrNoSSHDetails
	}
	if p.opts.PluginArchive == "" {
		return nil, errors.New("provision.plugin_archive is not configured")
	}
	archive, err := os.Open(p.opts.PluginArchive)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin archive: %w", err)
	}
	defer archive.Close()

	client, err := GetSSHClient(SSHTarget{
		Host:           w.SSHHost,
		User:           w.SSHUser,
		Password:       w.SSHPassword,
		KnownHostsFile: p.opts.KnownHostsFile,
		Timeout:        p.opts.SSHTimeout,
	})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	// Closing the connection aborts a running command when ctx ends.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	sftpClient, err := GetSFTPClient(client)
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	res := &ProvisionResult{}
	remoteZip := path.Join("/tmp", "wrms-"+uuid.NewString()+".zip")
	if err := UploadFile(sftpClient, remoteZip, archive); err != nil {
		return nil, err
	}
	res.Steps = append(res.Steps, "uploaded plugin archive")
	defer func() {
		if err := sftpClient.Remove(remoteZip); err != nil {
			utils.LogWarn("Failed to remove %s: %v", remoteZip, err)
		}
	}()

	for _, step := range provisionSteps(w.WPPath, remoteZip, w.APIKey) {
		if _, stderr, err := RunSSHCommand(client, step.command); err != nil {
			return res, fmt.Errorf("%s: %w: %s", step.name, err, strings.TrimSpace(stderr))
		}
		res.Steps = append(res.Steps, step.name)
	}
	return res, nil
}

type provisionStep struct {
	name    string
	command string
}

func provisionSteps(wpPath, remoteZip, apiKey string) []provisionStep {
	prefix := ""
	if wpPath != "" {
		prefix = "cd " + shellQuote(wpPath) + " && "
	}
	return []provisionStep{
		{
			name:    "installed and activated companion plugin",
			command: prefix + "wp plugin install " + shellQuote(remoteZip) + " --activate --force",
		},
		{
			name:    "stored API key",
			command: prefix + "wp option update wrms_api_key " + shellQuote(apiKey),
		},
	}
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
