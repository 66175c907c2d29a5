package redis

import (
	"strconv"
	"strings"
)

const defaultNamespace = "ca"

// Keyspace builds colon-separated keys under one namespace so several
// deployments can share a redis instance.
type Keyspace struct {
	ns string
}

func NewKeyspace(namespace string) Keyspace {
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = defaultNamespace
	}
	return Keyspace{ns: namespace}
}

func (k Keyspace) join(parts ...string) string {
	ns := k.ns
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

// Namespaced prefixes an application key: "user-store:<tab>" -> "ca:user-store:<tab>".
func (k Keyspace) Namespaced(key string) string { return k.join(key) }

// AccessSessionKey maps an access token id to its refresh session.
func (k Keyspace) AccessSessionKey(accessID string) string {
	return k.join("session", "access", accessID)
}

func (k Keyspace) LockKey(name string) string { return k.join("lock", name) }

func (k Keyspace) ChannelKey(name string) string { return k.join("events", name) }

func (k Keyspace) rateLimitKey(scope string, bucket int64) string {
	return k.join("rate_limit", scope, strconv.FormatInt(bucket, 10))
}
