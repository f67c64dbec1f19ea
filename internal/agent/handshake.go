package agent

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nrevox/growfleet/internal/constants"
	"github.com/nrevox/growfleet/internal/crypto"
	"github.com/nrevox/growfleet/internal/events"
	"github.com/nrevox/growfleet/internal/model"
	"github.com/nrevox/growfleet/internal/protocol"
)

// preamble runs the HTTPS login flow and returns the game address to
// connect to. State transitions mirror the fetch being attempted.
func (a *Agent) preamble(ctx context.Context) (string, error) {
	a.setState(StateFetchingServerDirectory)
	dir, err := a.authc.FetchDirectory(ctx)
	if err != nil {
		return "", fmt.Errorf("server directory: %w", err)
	}

	creds := a.login.Credentials()
	if creds.Method != model.LoginRefreshToken {
		a.setState(StateGettingDashboardLinks)
		links, err := a.authc.FetchDashboardLinks(ctx, dir.LoginURL, a.dashboardBlob(dir.Meta))
		if err != nil {
			return "", fmt.Errorf("dashboard links: %w", err)
		}

		a.setState(StateGettingToken)
		token, err := a.authc.AcquireToken(ctx, creds, links, a.fetcher)
		if err != nil {
			return "", fmt.Errorf("token: %w", err)
		}
		a.login.SetToken(token)
	}

	return fmt.Sprintf("%s:%d", dir.Server, dir.Port), nil
}

// dashboardBlob is the login blob posted to the dashboard endpoint.
func (a *Agent) dashboardBlob(meta string) string {
	fp := a.login.Fingerprint()
	b := protocol.NewTextBlob()
	b.Set("requestedName", "")
	b.Set("protocol", strconv.Itoa(constants.ProtocolVersion))
	b.Set("game_version", constants.GameVersion)
	b.Set("platformID", strconv.Itoa(constants.PlatformID))
	b.Set("rid", fp.RID)
	b.Set("mac", fp.MAC)
	b.Set("wk", fp.WK)
	b.Set("hash", strconv.FormatUint(uint64(fp.RIDHash), 10))
	b.Set("hash2", strconv.FormatUint(uint64(fp.MACHash), 10))
	b.Set("meta", meta)
	b.Set("klv", crypto.KLV(strconv.Itoa(constants.ProtocolVersion), constants.GameVersion, fp.RID))
	return b.String()
}

// onServerHello answers the hello with the credential blob. The key set
// branches on whether this connection is a sub-server hop.
func (a *Agent) onServerHello() error {
	var blob string
	if _, redirecting := a.login.Redirect(); redirecting {
		blob = a.redirectBlob()
	} else {
		blob = a.firstEntryBlob()
	}

	msg, err := protocol.EncodeTextMessage(protocol.MessageGenericText, blob)
	if err != nil {
		return fmt.Errorf("encoding credential blob: %w", err)
	}
	if err := a.tr.Send(true, msg); err != nil {
		return fmt.Errorf("sending credential blob: %w", err)
	}
	a.bus.Emit(events.TypePacketOut, map[string]any{"kind": "credentials"})
	return nil
}

// firstEntryBlob is the reduced key set for a fresh login.
func (a *Agent) firstEntryBlob() string {
	creds := a.login.Credentials()
	b := protocol.NewTextBlob()
	b.Set("protocol", strconv.Itoa(constants.ProtocolVersion))
	b.Set("ltoken", creds.Token)
	b.Set("platformID", strconv.Itoa(constants.PlatformID))
	return b.String()
}

// redirectBlob is the full key set emitted after an OnSendToServer hop:
// the complete fingerprint plus the door and UUID tokens the hop named.
func (a *Agent) redirectBlob() string {
	fp := a.login.Fingerprint()
	hop, _ := a.login.Redirect()

	b := protocol.NewTextBlob()
	b.Set("tankIDName", "")
	b.Set("tankIDPass", "")
	b.Set("requestedName", "")
	b.Set("f", "1")
	b.Set("protocol", strconv.Itoa(constants.ProtocolVersion))
	b.Set("game_version", constants.GameVersion)
	b.Set("lmode", "1")
	b.Set("cbits", "0")
	b.Set("player_age", "25")
	b.Set("GDPR", "3")
	b.Set("tr", "5100")
	b.Set("meta", "")
	b.Set("fhash", "-716928004")
	b.Set("rid", fp.RID)
	b.Set("platformID", strconv.Itoa(constants.PlatformID))
	b.Set("deviceVersion", "0")
	b.Set("country", "us")
	b.Set("hash", strconv.FormatUint(uint64(fp.RIDHash), 10))
	b.Set("mac", fp.MAC)
	b.Set("hash2", strconv.FormatUint(uint64(fp.MACHash), 10))
	b.Set("wk", fp.WK)
	b.Set("zf", "0")
	b.Set("klv", crypto.KLV(strconv.Itoa(constants.ProtocolVersion), constants.GameVersion, fp.RID))
	b.Set("user", strconv.FormatInt(int64(hop.UserID), 10))
	b.Set("token", strconv.FormatInt(int64(hop.Token), 10))
	b.Set("doorID", hop.DoorID)
	b.Set("UUIDToken", hop.UUID)
	b.Set("aat", strconv.FormatInt(int64(hop.AAT), 10))
	return b.String()
}

// sendAction emits a GenericText action blob like "action|enter_game".
func (a *Agent) sendAction(pairs ...[2]string) error {
	b := protocol.NewTextBlob()
	for _, kv := range pairs {
		b.Set(kv[0], kv[1])
	}
	msg, err := protocol.EncodeTextMessage(protocol.MessageGenericText, b.String())
	if err != nil {
		return err
	}
	return a.tr.Send(true, msg)
}
