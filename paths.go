package imapsync

import "strings"

// swapSeparators rewrites path from one hierarchy separator to another.
// Literal occurrences of the destination separator inside individual
// segments are substituted with the source separator so the segment
// boundaries survive a round trip.
func swapSeparators(path, from, to string) string {
	if from == "" || from == to {
		return path
	}
	parts := strings.Split(path, from)
	for i := range parts {
		parts[i] = strings.ReplaceAll(parts[i], to, from)
	}
	return strings.Join(parts, to)
}

// localPathFor returns the local folder path that stores messages for
// the given remote folder. ok is false when the folder is excluded from
// synchronization by an explicit empty mapping.
func (s *Syncer) localPathFor(remotePath string) (path string, ok bool) {
	if mapped, found := s.account.FolderMap[remotePath]; found {
		if mapped == "" {
			return "", false // do not synchronize this folder
		}
		return mapped, true
	}
	rel := swapSeparators(remotePath, s.delimiter, "/")
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		return "", false
	}
	return rel, true
}

// remotePathFor returns the remote mailbox name for the given local
// folder path. ok is false when the folder is excluded from
// synchronization.
func (s *Syncer) remotePathFor(localPath string) (path string, ok bool) {
	if mapped, found := s.localOverride[localPath]; found {
		if mapped == "" {
			return "", false
		}
		return mapped, true
	}
	if localPath == "" {
		return "", false
	}
	return swapSeparators(localPath, "/", s.delimiter), true
}
