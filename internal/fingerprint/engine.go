// Package fingerprint generates, rotates, and renders the synthetic
// per-account device identities described in spec §3/§4.1: a consistent
// User-Agent, client metadata, and a small set of upstream headers that
// make requests from one account look like they always come from the same
// machine.
package fingerprint

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// legacyUserAgentPrefix marks a fingerprint generated by an older build of
// the upstream client, before it adopted a browser-shaped UA string.
const legacyUserAgentPrefix = "antigravity/"

// Generate produces a fully random fingerprint (spec §4.1). Platform, OS
// version, and CPU architecture are independently uniform; editor and
// browser-engine versions are drawn from fixed pools.
func Generate() *models.Fingerprint {
	p := platforms[rand.IntN(len(platforms))]
	osVersion := pick(osVersionPools[p])
	arch := pick(archPool)
	editorVersion := pick(editorVersionPool)
	chromeVersion := pick(chromeVersionPool)

	return &models.Fingerprint{
		DeviceID:     uuid.New().String(),
		SessionToken: randomHex(16),
		UserAgent:    buildUserAgent(p, osVersion, editorVersion, chromeVersion),
		APIClient:    fmt.Sprintf("google-cloud-sdk antigravity/%s", editorVersion),
		QuotaUser:    "device-" + randomHex(8),
		ClientMetadata: models.ClientMetadata{
			IDEType:    pick(ideTypePool),
			Platform:   clientMetadataPlatform(p),
			PluginType: pick(pluginTypePool),
			OSVersion:  osVersion,
			Arch:       arch,
			SqmID:      uuid.New().String(),
		},
		CreatedAt: time.Now(),
	}
}

// BuildHeaders renders the outbound HTTP headers for a fingerprint. Returns
// an empty map if fp is nil (spec §4.1, §8).
func BuildHeaders(fp *models.Fingerprint) map[string]string {
	if fp == nil {
		return map[string]string{}
	}

	metadata, err := json.Marshal(fp.ClientMetadata)
	if err != nil {
		metadata = []byte("{}")
	}

	return map[string]string{
		"User-Agent":         fp.UserAgent,
		"X-Goog-Api-Client":  fp.APIClient,
		"Client-Metadata":    string(metadata),
		"X-Goog-QuotaUser":   fp.QuotaUser,
		"X-Client-Device-Id": fp.DeviceID,
	}
}

// UpdateVersion refreshes a legacy fingerprint's user agent and client
// metadata while preserving its identity fields, or returns fp unchanged by
// identity if it's already on the current scheme (spec §4.1, §8).
func UpdateVersion(fp *models.Fingerprint) *models.Fingerprint {
	if fp == nil || !strings.HasPrefix(fp.UserAgent, legacyUserAgentPrefix) {
		return fp
	}

	fresh := Generate()
	fresh.DeviceID = fp.DeviceID
	fresh.SessionToken = fp.SessionToken
	fresh.QuotaUser = fp.QuotaUser
	fresh.CreatedAt = fp.CreatedAt
	return fresh
}

func buildUserAgent(p platform, osVersion, editorVersion, chromeVersion string) string {
	switch p {
	case platformDarwin:
		mac := strings.ReplaceAll(osVersion, ".", "_")
		return fmt.Sprintf(
			"Mozilla/5.0 (Macintosh; Intel Mac OS X %s) AppleWebKit/537.36 (KHTML, like Gecko) Code/%s Chrome/%s Safari/537.36",
			mac, editorVersion, chromeVersion,
		)
	case platformWin32:
		return fmt.Sprintf(
			"Mozilla/5.0 (Windows NT %s; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Code/%s Chrome/%s Safari/537.36",
			osVersion, editorVersion, chromeVersion,
		)
	default: // platformLinux
		return fmt.Sprintf(
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Code/%s Chrome/%s Safari/537.36",
			editorVersion, chromeVersion,
		)
	}
}

func pick(pool []string) string {
	return pool[rand.IntN(len(pool))]
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := cryptorand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real host;
		// fall back to a visibly-degenerate value rather than panic.
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(buf)
}
