package imapsync

import "strings"

// FlagSet represents the action to take on a flag
type FlagSet int

const (
	FlagUnset FlagSet = iota
	FlagAdd
	FlagRemove
)

// Flags represents standard IMAP message flags
type Flags struct {
	Seen     FlagSet
	Answered FlagSet
	Flagged  FlagSet
	Deleted  FlagSet
	Draft    FlagSet
	Keywords map[string]bool
}

// systemFlags are the flags owned by the server side under the
// ServerWins policy. \Recent is session-only and never synchronized.
var systemFlags = map[string]bool{
	`\seen`:     true,
	`\answered`: true,
	`\flagged`:  true,
	`\deleted`:  true,
	`\draft`:    true,
}

// IsSystemFlag reports whether f is one of the synchronized system flags.
func IsSystemFlag(f string) bool {
	return systemFlags[strings.ToLower(f)]
}

// hasFlag reports whether flags contains f, case-insensitively.
func hasFlag(flags []string, f string) bool {
	for _, x := range flags {
		if strings.EqualFold(x, f) {
			return true
		}
	}
	return false
}

// FlagPolicy names the precedence rule applied when both sides changed a
// message's flags between runs.
type FlagPolicy int

const (
	// ServerWins takes the server's system flags and preserves local
	// keywords. This is the default.
	ServerWins FlagPolicy = iota
	// LocalWins pushes the local system flags to the server.
	LocalWins
)

// mergeFlags computes the local flag list after reconciling remote
// against local under ServerWins: system flags come from the remote set,
// keywords from the local set. The result is stable for equal inputs.
func mergeFlags(remote, local []string) []string {
	merged := make([]string, 0, len(remote)+len(local))
	for _, f := range remote {
		if IsSystemFlag(f) {
			merged = append(merged, f)
		}
	}
	for _, f := range local {
		if !IsSystemFlag(f) && !strings.EqualFold(f, `\Recent`) && !hasFlag(merged, f) {
			merged = append(merged, f)
		}
	}
	return merged
}

// flagsEqual reports whether two flag lists contain the same flags,
// ignoring order, case, and \Recent.
func flagsEqual(a, b []string) bool {
	am := make(map[string]bool, len(a))
	for _, f := range a {
		if !strings.EqualFold(f, `\Recent`) {
			am[strings.ToLower(f)] = true
		}
	}
	bm := make(map[string]bool, len(b))
	for _, f := range b {
		if !strings.EqualFold(f, `\Recent`) {
			bm[strings.ToLower(f)] = true
		}
	}
	if len(am) != len(bm) {
		return false
	}
	for f := range am {
		if !bm[f] {
			return false
		}
	}
	return true
}

// storeDelta builds the Flags STORE argument that turns the remote
// system flags into the local ones. Keywords are never removed remotely.
func storeDelta(local, remote []string) Flags {
	delta := Flags{Keywords: map[string]bool{}}
	set := func(dst *FlagSet, name string) {
		l, r := hasFlag(local, name), hasFlag(remote, name)
		switch {
		case l && !r:
			*dst = FlagAdd
		case !l && r:
			*dst = FlagRemove
		}
	}
	set(&delta.Seen, `\Seen`)
	set(&delta.Answered, `\Answered`)
	set(&delta.Flagged, `\Flagged`)
	set(&delta.Deleted, `\Deleted`)
	set(&delta.Draft, `\Draft`)
	for _, f := range local {
		if !IsSystemFlag(f) && !strings.HasPrefix(f, `\`) && !hasFlag(remote, f) {
			delta.Keywords[f] = true
		}
	}
	return delta
}

// empty reports whether applying the flag set would be a no-op.
func (f Flags) empty() bool {
	return f.Seen == FlagUnset && f.Answered == FlagUnset && f.Flagged == FlagUnset &&
		f.Deleted == FlagUnset && f.Draft == FlagUnset && len(f.Keywords) == 0
}
