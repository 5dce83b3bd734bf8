package anomaly

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/agubarev/aegis/pkg/codec"
	"github.com/pkg/errors"
)

// Encode serializes a model into its artifact form: zstd-compressed CBOR
func Encode(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	payload, err := codec.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode model")
	}

	return codec.Compress(payload)
}

// Decode parses and validates a model artifact
func Decode(artifact []byte) (*Model, error) {
	payload, err := codec.Decompress(artifact)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidModel, err.Error())
	}

	m := new(Model)
	if err = codec.Unmarshal(payload, m); err != nil {
		return nil, errors.Wrap(ErrInvalidModel, err.Error())
	}

	if err = m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// SaveFile writes a model artifact, replacing the target atomically
func SaveFile(path string, m *Model) error {
	if path == "" {
		return ErrEmptyModelPath
	}

	artifact, err := Encode(m)
	if err != nil {
		return err
	}

	tmp, err := ioutil.TempFile(filepath.Dir(path), ".model-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary artifact")
	}

	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(artifact); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write artifact")
	}

	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close artifact")
	}

	return os.Rename(tmp.Name(), path)
}

// LoadFile reads a model artifact from disk
func LoadFile(path string) (*Model, error) {
	if path == "" {
		return nil, ErrEmptyModelPath
	}

	artifact, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model %s", path)
	}

	return Decode(artifact)
}
