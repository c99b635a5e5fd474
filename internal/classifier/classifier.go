// Package classifier decides whether a pixel hit came from a human reader
// or from automated infrastructure (security gateways, mail-provider image
// proxies, prefetchers). Classification is a pure function over the request
// user agent, client IP, and the elapsed time since the last send to the
// lead; it never errs and always returns a definite verdict with a
// human-readable reason for the audit trail.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
)

// Verdict is the outcome of classifying one pixel hit.
type Verdict struct {
	IsHuman      bool
	IsSuspicious bool
	Reason       string
}

// Thresholds holds the timing gates, in seconds since the last recorded
// send. Provider proxies fetch the pixel automatically at delivery time, so
// each trusted class is only believed after its own minimum delay.
type Thresholds struct {
	// MinHumanSeconds is the floor below which no hit can be human:
	// nothing renders an email and gets a human to act this fast.
	MinHumanSeconds float64
	// GmailProxySeconds gates the Gmail image proxy class.
	GmailProxySeconds float64
	// AppleProxySeconds gates Apple Mail Privacy Protection fetches.
	AppleProxySeconds float64
	// DesktopClientSeconds gates desktop/webmail client UAs, which have
	// their own prefetch behavior (Outlook in particular).
	DesktopClientSeconds float64
}

// DefaultThresholds returns the production timing gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinHumanSeconds:      5,
		GmailProxySeconds:    10,
		AppleProxySeconds:    15,
		DesktopClientSeconds: 45,
	}
}

// Reason prefixes/values attached to verdicts.
const (
	ReasonSecurityGateway = "security_gateway"
	ReasonNoLastSent      = "no_last_sent"
	ReasonUnrecognizedUA  = "unrecognized_ua"
)

var securityGatewaySignatures = []string{
	"proofpoint", "mimecast", "barracuda", "trendmicro", "symantec", "sophos",
}

var gmailProxySignatures = []string{
	"googleimageproxy", "ggpht", "google proxy", "gmail",
}

var appleProxySignatures = []string{
	"apple", "icloud", "mpp",
}

// genericProxySignatures is the broad proxy net used by the webhook-channel
// quick test; broader and less precise than the pixel-path classes above.
var genericProxySignatures = []string{
	"googleimageproxy", "google proxy", "mpp", "apple", "icloud",
	"outlook-httpproxy", "outlookimgcache", "microsoft-httpproxy",
	"office365-httpproxy", "proofpoint", "mimecast", "barracuda",
	"trendmicro", "symantec", "sophos",
}

var proxyIPSignatures = []string{
	"google", "microsoft", "outlook", "office", "icloud", "apple",
	"yahoo", "aol", "proofpoint", "mimecast",
}

var (
	browserUARe = regexp.MustCompile(`(iphone|ipad|android|windows nt|macintosh|linux).*?(chrome|safari|firefox|edge)`)
	officeUARe  = regexp.MustCompile(`(microsoft outlook|ms-office|office|msie|trident/\d+\.\d+)`)
	outlookUARe = regexp.MustCompile(`(mozilla/5\.0).*?(windows nt|macintosh).*?(outlook)`)
)

func containsAny(s string, signatures []string) bool {
	for _, sig := range signatures {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}

// LooksLikeProxyUA reports whether the user agent matches any known proxy
// or gateway signature.
func LooksLikeProxyUA(ua string) bool {
	return containsAny(strings.ToLower(ua), genericProxySignatures)
}

// LooksLikeProxyIP reports whether the client IP string (often a reverse
// DNS name or provider-tagged address from upstream headers) matches a
// known provider.
func LooksLikeProxyIP(ip string) bool {
	return containsAny(strings.ToLower(ip), proxyIPSignatures)
}

// LooksLikeHumanUA reports whether the user agent carries the shape of a
// real browser or desktop mail client.
func LooksLikeHumanUA(ua string) bool {
	s := strings.ToLower(ua)
	return browserUARe.MatchString(s) || officeUARe.MatchString(s) || outlookUARe.MatchString(s)
}

// WebhookTooFastSeconds is the cruder timing floor used by the webhook
// channel, which lacks direct request timing.
const WebhookTooFastSeconds = 12

// WebhookOpenSuspicious is the simple, non-timing-gated test applied to
// webhook-sourced opens. The webhook channel never drives scoring, so this
// only tags the audit record.
func WebhookOpenSuspicious(ua, ip string, secsSinceSend *float64) bool {
	if !LooksLikeHumanUA(ua) {
		return true
	}
	if LooksLikeProxyUA(ua) || LooksLikeProxyIP(ip) {
		return true
	}
	return secsSinceSend != nil && *secsSinceSend < WebhookTooFastSeconds
}

// Classify runs the pixel-path policy with the default thresholds.
func Classify(ua, ip string, secsSinceSend *float64) Verdict {
	return ClassifyWith(DefaultThresholds(), ua, ip, secsSinceSend)
}

// ClassifyWith applies the ordered decision policy. First match wins; the
// order encodes precedence:
//
//  1. security/gateway scanners are never human
//  2. hits faster than any human could act are never human, even from an
//     otherwise trusted class
//  3. Gmail/Apple image proxies are trusted only past their delay gate;
//     with no timing baseline they are accepted as a probabilistic human
//     signal rather than rejected
//  4. desktop/webmail client UAs are trusted past a longer gate
//  5. everything else fails closed to suspicious
func ClassifyWith(t Thresholds, ua, ip string, secsSinceSend *float64) Verdict {
	loUA := strings.ToLower(ua)
	loIP := strings.ToLower(ip)

	if containsAny(loUA, securityGatewaySignatures) || containsAny(loIP, securityGatewaySignatures) {
		return Verdict{IsSuspicious: true, Reason: ReasonSecurityGateway}
	}

	if secsSinceSend != nil && *secsSinceSend < t.MinHumanSeconds {
		return Verdict{IsSuspicious: true, Reason: fmt.Sprintf("tooFast_%ds", int(*secsSinceSend))}
	}

	gmailProxy := containsAny(loUA, gmailProxySignatures) || containsAny(loIP, []string{"google"})
	appleProxy := containsAny(loUA, appleProxySignatures) || containsAny(loIP, []string{"apple", "icloud"})

	if gmailProxy || appleProxy {
		provider, gate := "gmail_proxy", t.GmailProxySeconds
		if !gmailProxy {
			provider, gate = "apple_mpp", t.AppleProxySeconds
		}
		if secsSinceSend == nil {
			// No prior send recorded. Most real recipients fall in this
			// UA/IP class, so accept rather than reject outright.
			return Verdict{IsHuman: true, Reason: provider + "_no_timing"}
		}
		if *secsSinceSend >= gate {
			return Verdict{IsHuman: true, Reason: fmt.Sprintf("%s_delayed_%ds", provider, int(*secsSinceSend))}
		}
		return Verdict{IsSuspicious: true, Reason: fmt.Sprintf("%s_too_soon_%ds", provider, int(*secsSinceSend))}
	}

	if LooksLikeHumanUA(ua) && !LooksLikeProxyUA(ua) {
		if secsSinceSend != nil {
			if *secsSinceSend >= t.DesktopClientSeconds {
				return Verdict{IsHuman: true, Reason: fmt.Sprintf("desktop_client_delayed_%ds", int(*secsSinceSend))}
			}
			return Verdict{IsSuspicious: true, Reason: fmt.Sprintf("desktop_client_too_soon_%ds", int(*secsSinceSend))}
		}
		// No timing baseline: cannot apply prefetch skepticism, fail closed.
		return Verdict{IsSuspicious: true, Reason: ReasonNoLastSent}
	}

	if secsSinceSend == nil {
		return Verdict{IsSuspicious: true, Reason: ReasonNoLastSent}
	}
	return Verdict{IsSuspicious: true, Reason: ReasonUnrecognizedUA}
}
