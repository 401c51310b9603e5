package auth

import (
	"strings"

	"github.com/halyardhq/walletgate/proto"
)

// Mode is the fallback stance for passkey/social verification. It is an
// explicit two-valued policy consumed by the resolver, not a scattering of
// conditionals: Strict fails closed whenever the remote verifier is absent or
// unreachable, PermissiveWithLocalFallback degrades to the local HMAC proof.
type Mode int

const (
	PermissiveWithLocalFallback Mode = iota
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}

// ProviderPolicy is evaluated before any verification work.
type ProviderPolicy struct {
	allowed          map[string]struct{}
	remoteConfigured bool
	mode             Mode
}

func NewProviderPolicy(allowedProviders []string, remoteConfigured bool, mode Mode) *ProviderPolicy {
	p := &ProviderPolicy{
		remoteConfigured: remoteConfigured,
		mode:             mode,
	}
	if len(allowedProviders) > 0 {
		p.allowed = make(map[string]struct{}, len(allowedProviders))
		for _, provider := range allowedProviders {
			p.allowed[strings.ToLower(strings.TrimSpace(provider))] = struct{}{}
		}
	}
	return p
}

func (p *ProviderPolicy) Mode() Mode {
	return p.mode
}

// Allowed checks the provider allow-list. An empty allow-list allows all,
// except that the wallet method only ever accepts provider "wallet".
func (p *ProviderPolicy) Allowed(method proto.Method, provider string) error {
	if method == proto.Method_Wallet {
		if provider != proto.ProviderWallet {
			return proto.ErrProviderNotAllowed
		}
		return nil
	}
	if p.allowed == nil {
		return nil
	}
	if _, ok := p.allowed[provider]; !ok {
		return proto.ErrProviderNotAllowed
	}
	return nil
}

// Configured checks whether the method+provider combination can actually be
// verified. Wallet always can. Passkey and social need the remote verifier,
// unless the mode permits the local fallback, in which case they are
// considered configured regardless.
func (p *ProviderPolicy) Configured(method proto.Method, provider string) error {
	switch method {
	case proto.Method_Wallet:
		return nil
	case proto.Method_Passkey, proto.Method_Social:
		if p.remoteConfigured {
			return nil
		}
		if p.mode == Strict {
			return proto.ErrProviderNotConfigured
		}
		return nil
	default:
		return proto.ErrProviderNotConfigured
	}
}
