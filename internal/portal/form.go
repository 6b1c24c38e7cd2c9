package portal

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Form holds the fields of an HTML login form as served by the portal. The
// portal renames its fields and rotates anti-forgery tokens between deploys,
// so nothing here is hardcoded: every input is captured with the default
// value present in the markup.
type Form struct {
	Action string
	Fields map[string]string
}

// ExtractForm parses the first <form> in the document and returns its action
// and the name/value pairs of all input elements, including hidden tokens.
func ExtractForm(content []byte) (*Form, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing login page: %w", err)
	}

	formNode := findFirst(doc, "form")
	if formNode == nil {
		return nil, fmt.Errorf("no form found in login page")
	}

	form := &Form{
		Action: attr(formNode, "action"),
		Fields: make(map[string]string),
	}

	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			name := attr(n, "name")
			if name != "" {
				form.Fields[name] = attr(n, "value")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(formNode)

	return form, nil
}

// SetCredentials fills the extracted field set with the supplied username and
// password. Fields are matched by substring so renamed inputs (loginId,
// j_username, user_email) still receive the credential; if nothing matches,
// conventional names are added so the submit is still attempted.
func (f *Form) SetCredentials(username, password string) {
	userSet, passSet := false, false
	for name := range f.Fields {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "pass"):
			f.Fields[name] = password
			passSet = true
		case strings.Contains(lower, "user") || strings.Contains(lower, "email") || strings.Contains(lower, "login"):
			f.Fields[name] = username
			userSet = true
		}
	}
	if !userSet {
		f.Fields["username"] = username
	}
	if !passSet {
		f.Fields["password"] = password
	}
}

// findFirst returns the first element node with the given tag, depth-first.
func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
