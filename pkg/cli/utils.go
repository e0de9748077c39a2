package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/keybase/dbus"
	"github.com/keybase/go-keychain/secretservice"
)

const (
	service    = "odi-invoices"
	collection = secretservice.DefaultCollection

	keychainPrefix = "keychain:"
)

// SecretLookup resolves the secret stored under a keychain element name.
type SecretLookup interface {
	Lookup(element string) (string, error)
}

// FillKeychainValues replaces every string field of args (embedded structs
// included) holding "keychain:<element>" with the secret from the system
// keychain.
func FillKeychainValues[T any](args *T) error {
	return FillValues(args, &secretServiceLookup{})
}

func FillValues[T any](args *T, lookup SecretLookup) error {
	return fill(reflect.ValueOf(args).Elem(), lookup)
}

func fill(v reflect.Value, lookup SecretLookup) error {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		sf := v.Type().Field(i)
		if f.Kind() == reflect.Struct && sf.Anonymous {
			if err := fill(f, lookup); err != nil {
				return err
			}
			continue
		}
		if f.Kind() != reflect.String || !strings.HasPrefix(f.String(), keychainPrefix) {
			continue
		}
		if !f.CanSet() {
			return fmt.Errorf("set value for field %s", sf.Name)
		}
		secret, err := lookup.Lookup(strings.TrimPrefix(f.String(), keychainPrefix))
		if err != nil {
			return err
		}
		f.SetString(secret)
	}
	return nil
}

type secretServiceLookup struct {
	svc     *secretservice.SecretService
	session *secretservice.Session
}

func (s *secretServiceLookup) Lookup(element string) (string, error) {
	if s.svc == nil {
		var err error
		s.svc, s.session, err = initSecretService()
		if err != nil {
			return "", fmt.Errorf("init secret service: %v", err)
		}
	}
	items, err := s.svc.SearchCollection(collection, secretservice.Attributes{
		"service": service,
		"element": element,
	})
	if err != nil {
		return "", fmt.Errorf("search keychain element: %v", err)
	}
	if len(items) < 1 {
		return "", fmt.Errorf("keychain element %s not found", element)
	}
	if len(items) > 1 {
		return "", fmt.Errorf("found more than one keychain elements for %s", element)
	}
	secretValue, err := s.svc.GetSecret(items[0], *s.session)
	if err != nil {
		return "", fmt.Errorf("get value from keychain: %v", err)
	}
	return string(secretValue), nil
}

func initSecretService() (*secretservice.SecretService, *secretservice.Session, error) {
	svc, err := secretservice.NewService()
	if err != nil {
		return nil, nil, fmt.Errorf("create keychain service: %v", err)
	}
	if err := svc.Unlock([]dbus.ObjectPath{collection}); err != nil {
		return nil, nil, fmt.Errorf("unlock keychain service: %v", err)
	}
	session, err := svc.OpenSession(secretservice.AuthenticationDHAES)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %v", err)
	}
	return svc, session, nil
}
