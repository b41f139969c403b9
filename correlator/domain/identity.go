package domain

import "strings"

// Identity é o e-mail normalizado (trim + lower) usado como chave de correlação
// entre o clique e o webhook.
type Identity string

func NormalizeIdentity(raw string) Identity {
	return Identity(strings.ToLower(strings.TrimSpace(raw)))
}

func (i Identity) String() string { return string(i) }

func (i Identity) Empty() bool { return i == "" }
