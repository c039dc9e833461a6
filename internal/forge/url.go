package forge

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	httpsForm = regexp.MustCompile(`^https://([^/]+)/([^/]+)/([^/]+?)(\.git)?/?$`)
	sshForm   = regexp.MustCompile(`^git@([^:]+):([^/]+)/([^/]+?)(\.git)?$`)
)

// Repository is a parsed forge URL: the host, owner and repo name.
type Repository struct {
	Host  string
	Owner string
	Name  string
}

// ErrInvalidURL is returned by ParseURL for anything other than the two
// accepted forge-URL shapes. Other forges would need this parser
// extended; it is not a generic VCS-URL parser.
var ErrInvalidURL = fmt.Errorf("forge: unrecognized repository URL")

// ParseURL accepts exactly https://<forge>/<owner>/<repo>[.git] and
// git@<forge>:<owner>/<repo>[.git], rejecting all other forms.
func ParseURL(raw string) (Repository, error) {
	raw = strings.TrimSpace(raw)
	if m := httpsForm.FindStringSubmatch(raw); m != nil {
		return Repository{Host: m[1], Owner: m[2], Name: m[3]}, nil
	}
	if m := sshForm.FindStringSubmatch(raw); m != nil {
		return Repository{Host: m[1], Owner: m[2], Name: m[3]}, nil
	}
	return Repository{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
}
