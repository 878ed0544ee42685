// Package authscript authors and installs the token-acquisition pre-request
// script carried by generated collections.
//
// The script runs inside the request runtime before every request. It keeps
// a per-environment token cache: a cached jwt_token is reused until one
// minute before its recorded expiry, after which a client-credentials
// exchange against the environment's token_url refreshes it. A failed
// exchange fails the request rather than letting it proceed with an absent
// or expired token.
//
// Install replaces any previously installed copy of the script; it never
// appends a duplicate event.
package authscript

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/specsync/specsync/pkg/catalog"
)

// expiryBufferMillis is the safety window subtracted from the recorded token
// expiry before a cached token is considered reusable.
const expiryBufferMillis = 60000

// scriptMarker identifies events installed by this engine, so reinstallation
// replaces rather than duplicates.
const scriptMarker = "jwt_token"

const prerequestScript = `// Token caching with automatic refresh
const tokenExpiry = pm.environment.get("token_expiry");
const cachedToken = pm.environment.get("jwt_token");

if (cachedToken && tokenExpiry && Date.now() < parseInt(tokenExpiry) - 60000) {
    pm.request.headers.add({
        key: "Authorization",
        value: "Bearer " + cachedToken
    });
    return;
}

const clientId = pm.environment.get("client_id");
const clientSecret = pm.environment.get("client_secret");
const tokenUrl = pm.environment.get("token_url");

if (!clientId || !clientSecret || !tokenUrl) {
    throw new Error("JWT auth variables not configured. Set client_id, client_secret, and token_url in the environment.");
}

pm.sendRequest({
    url: tokenUrl,
    method: 'POST',
    header: {'Content-Type': 'application/x-www-form-urlencoded'},
    body: {
        mode: 'urlencoded',
        urlencoded: [
            {key: 'grant_type', value: 'client_credentials'},
            {key: 'client_id', value: clientId},
            {key: 'client_secret', value: clientSecret}
        ]
    }
}, (err, response) => {
    if (!err && response.code === 200) {
        const data = response.json();
        pm.environment.set("jwt_token", data.access_token);
        pm.environment.set("token_expiry", Date.now() + (data.expires_in * 1000));
        pm.request.headers.add({
            key: "Authorization",
            value: "Bearer " + data.access_token
        });
    } else {
        // Previous cached values stay untouched; the request must not run
        // without a current token.
        throw new Error("Failed to fetch JWT token: " + (err || response.status));
    }
});`

// Script returns the pre-request script source.
func Script() string {
	return prerequestScript
}

// ScriptLines returns the script split into lines, the shape collection
// events store their source in.
func ScriptLines() []string {
	return strings.Split(prerequestScript, "\n")
}

// event is one entry of a collection's event list.
type event struct {
	Listen string `json:"listen"`
	Script struct {
		Type string   `json:"type"`
		Exec []string `json:"exec"`
	} `json:"script"`
}

func newPrerequestEvent() event {
	var e event
	e.Listen = "prerequest"
	e.Script.Type = "text/javascript"
	e.Script.Exec = ScriptLines()
	return e
}

// Installer installs the pre-request script into collections.
type Installer struct {
	collections *catalog.CollectionStore
}

// NewInstaller creates an installer backed by the given collection store.
func NewInstaller(collections *catalog.CollectionStore) *Installer {
	return &Installer{collections: collections}
}

// Install fetches the collection, strips any pre-request event previously
// installed by this engine, attaches a fresh copy of the script, and writes
// the collection back. Installing twice leaves exactly one script event.
func (i *Installer) Install(ctx context.Context, collectionID string) error {
	raw, err := i.collections.Get(ctx, collectionID)
	if err != nil {
		return err
	}

	var doc struct {
		Collection map[string]json.RawMessage `json:"collection"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode collection %s: %w", collectionID, err)
	}
	if doc.Collection == nil {
		return fmt.Errorf("collection %s not found in catalog response", collectionID)
	}

	var events []event
	if rawEvents, ok := doc.Collection["event"]; ok {
		if err := json.Unmarshal(rawEvents, &events); err != nil {
			return fmt.Errorf("failed to decode collection events: %w", err)
		}
	}

	kept := events[:0]
	for _, e := range events {
		if e.Listen == "prerequest" && installedByEngine(e) {
			continue
		}
		kept = append(kept, e)
	}
	kept = append(kept, newPrerequestEvent())

	encoded, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("failed to encode collection events: %w", err)
	}
	doc.Collection["event"] = encoded

	updated, err := json.Marshal(map[string]any{"collection": doc.Collection})
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", collectionID, err)
	}
	return i.collections.Update(ctx, collectionID, updated)
}

// installedByEngine reports whether a pre-request event carries the engine's
// token-cache script.
func installedByEngine(e event) bool {
	for _, line := range e.Script.Exec {
		if strings.Contains(line, scriptMarker) {
			return true
		}
	}
	return false
}
