package provider

import "github.com/motdiem/email-kanban/internal/model"

// Factory resolves the adapter serving a given account. Implemented by
// the registry package; consumed by the sync cache and the action
// dispatcher so neither depends on concrete adapters.
type Factory interface {
	AdapterFor(account model.Account) (Provider, error)
}
