package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"goa.design/nl2api/metadata"
)

// buildRequest routes interpolated params into path segments, query
// string, headers, and (for POST/PUT/PATCH) a JSON body. Unknown param
// names (absent from ep.Params) are dropped. aliasMap maps an exact base
// URL string to a path prefix put in front of the endpoint path
// (config.AliasMap).
func buildRequest(baseURL string, ep *metadata.Endpoint, params map[string]any, aliasMap map[string]string) (method, fullURL string, header map[string]string, body []byte, err error) {
	byName := make(map[string]metadata.RequestParameter, len(ep.Params))
	for _, p := range ep.Params {
		byName[p.Name] = p
	}

	path := ep.Path
	query := url.Values{}
	headers := map[string]string{}
	bodyFields := map[string]any{}

	for name, value := range params {
		p, known := byName[name]
		if !known {
			continue
		}
		switch p.In {
		case metadata.InPath:
			placeholder := "{" + name + "}"
			if !strings.Contains(path, placeholder) {
				return "", "", nil, nil, fmt.Errorf("executor: path parameter %q has no matching segment in %q", name, ep.Path)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(fmt.Sprintf("%v", value)))
		case metadata.InQuery:
			query.Set(name, fmt.Sprintf("%v", value))
		case metadata.InHeader:
			headers[name] = fmt.Sprintf("%v", value)
		case metadata.InBody:
			bodyFields[name] = value
		}
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", "", nil, nil, fmt.Errorf("executor: invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", nil, nil, fmt.Errorf("executor: base URL %q must be absolute http/https", baseURL)
	}
	if prefix, ok := aliasMap[baseURL]; ok && !strings.HasPrefix(path, prefix) {
		path = prefix + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var bodyBytes []byte
	if len(bodyFields) > 0 && isBodyMethod(ep.Method) {
		bodyBytes, err = json.Marshal(bodyFields)
		if err != nil {
			return "", "", nil, nil, fmt.Errorf("executor: encode request body: %w", err)
		}
	}

	return string(ep.Method), u.String(), headers, bodyBytes, nil
}

func isBodyMethod(m metadata.HTTPMethod) bool {
	return m == metadata.MethodPost || m == metadata.MethodPut || m == metadata.MethodPatch
}

// applyCredential renders cred into the Authorization or Cookie header.
func applyCredential(headers map[string]string, cred Credential) {
	switch cred.Kind {
	case CredentialBearer:
		headers["Authorization"] = "Bearer " + cred.Token
	case CredentialCookie:
		headers["Cookie"] = cred.CookieName + "=" + cred.CookieVal
	}
}

// bodyReader wraps body for http.NewRequestWithContext. An empty body gives
// an empty reader, which net/http sends as no body at all, so GET/DELETE
// style requests carry none.
func bodyReader(body []byte) *bytes.Reader {
	if len(body) == 0 {
		return bytes.NewReader(nil)
	}
	return bytes.NewReader(body)
}
