package util

import (
	"github.com/pkg/errors"
	"github.com/tidwall/pretty"
)

// PrettyJSON marshals a value and returns indented, colorless JSON
func PrettyJSON(val interface{}) ([]byte, error) {
	buf, err := json.Marshal(val)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal value")
	}

	return pretty.Pretty(buf), nil
}
