package authgate

import (
	"context"

	"github.com/MrEthical07/authgate/device"
	"github.com/MrEthical07/authgate/risk"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type countryContextKey struct{}
type clientIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it for
// the device fingerprint, risk scoring, login history and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the caller's User-Agent header to ctx.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, ua)
}

// WithCountry attaches the geo-resolved country of the caller to ctx. It
// feeds the impossible-travel rule.
func WithCountry(ctx context.Context, country string) context.Context {
	return context.WithValue(ctx, countryContextKey{}, country)
}

// WithClientID attaches a stable client-provided device identifier to ctx. When
// present it replaces the User-Agent based fingerprint.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDContextKey{}, id)
}

func clientIPFromContext(ctx context.Context) string {
	v, _ := ctx.Value(clientIPContextKey{}).(string)
	return v
}

func userAgentFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userAgentContextKey{}).(string)
	return v
}

func countryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(countryContextKey{}).(string)
	return v
}

func clientIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(clientIDContextKey{}).(string)
	return v
}

// requestInfo is what one call reveals about its origin. Observed is false
// when the caller attached no client id, address or user agent; DeviceID is
// then the fingerprint of an anonymous client.
type requestInfo struct {
	IP        string
	UserAgent string
	Country   string
	DeviceID  string
	Observed  bool
}

func (r requestInfo) riskSignal() risk.Signal {
	return risk.Signal{IP: r.IP, Country: r.Country, DeviceID: r.DeviceID}
}

// boundDeviceID returns the device id to compare against credential
// bindings, or "" when the request carried no device signal.
func (r requestInfo) boundDeviceID() string {
	if !r.Observed {
		return ""
	}
	return r.DeviceID
}

func requestFromContext(ctx context.Context) requestInfo {
	clientID := clientIDFromContext(ctx)
	info := requestInfo{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Country:   countryFromContext(ctx),
	}
	info.Observed = clientID != "" || info.IP != "" || info.UserAgent != ""
	info.DeviceID = device.Fingerprint(device.Signal{ClientID: clientID, UserAgent: info.UserAgent, IP: info.IP})
	return info
}
