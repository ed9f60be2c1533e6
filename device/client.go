package device

import (
	"github.com/justapithecus/mk0link/command"
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/types"
)

// Client issues the device's commands and logs their outcome.
type Client struct {
	commands *command.Channel
	logger   *log.Logger
}

// NewClient creates a client over commands.
func NewClient(commands *command.Channel, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{commands: commands, logger: logger}
}

// Commands returns the underlying channel.
func (c *Client) Commands() *command.Channel {
	return c.commands
}

// ConfigureRecording turns recording on or off. A nil enable sends an empty
// configuration.
func (c *Client) ConfigureRecording(enable *bool) (*command.Pending, error) {
	return c.commands.Submit(command.ConfigureRecording(enable),
		c.report("Recording configured successfully.", "Failed to configure recording"))
}

// ConfigurePlayback changes playback state and volume. Volume is clamped
// to [0.0, 1.0].
func (c *Client) ConfigurePlayback(enable *bool, volume *float32) (*command.Pending, error) {
	return c.commands.Submit(command.ConfigurePlayback(enable, volume),
		c.report("Playback configured successfully.", "Failed to configure playback"))
}

// SetVolume sends a playback configuration carrying only the volume.
func (c *Client) SetVolume(volume float32) (*command.Pending, error) {
	return c.commands.Submit(command.SetVolume(volume),
		c.report("Playback configured successfully.", "Failed to configure playback"))
}

// Reset asks the device to soft reset.
func (c *Client) Reset() (*command.Pending, error) {
	p, err := c.commands.Submit(command.Reset(),
		c.report("Device reset command sent successfully.", "Failed to reset device"))
	if err != nil {
		return p, err
	}
	c.logger.Info("Reset command sent. Device will reset momentarily.", map[string]any{
		"cmd_id": p.ID(),
	})
	return p, nil
}

// report logs success for a SUCCESS response and an error otherwise.
func (c *Client) report(success, failure string) command.CompletionFunc {
	return func(resp types.CommandResponse, err error) {
		if err != nil {
			c.logger.Error(failure+": "+err.Error(), map[string]any{"error": err.Error()})
			return
		}
		fields := map[string]any{"cmd_id": resp.ID}
		switch {
		case resp.Status.OK():
			c.logger.Info(success, fields)
		default:
			fields["status"] = resp.Status.String()
			c.logger.Error(failure+": "+resp.Status.String(), fields)
		}
	}
}
