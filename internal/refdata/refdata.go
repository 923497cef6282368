// Package refdata resolves internal instrument ids to venue contracts.
package refdata

import (
	"sort"
	"strings"
	"sync"

	"github.com/coachpo/tickwire/errs"
	"github.com/coachpo/tickwire/internal/gateway"
	"github.com/coachpo/tickwire/internal/schema"
)

// Resolver maps an instrument to the venue contract used in requests.
type Resolver interface {
	Contract(instrument schema.InstrumentID) (gateway.Contract, error)
}

// Static is an in-memory resolver. It is safe for concurrent use.
type Static struct {
	mu        sync.RWMutex
	contracts map[schema.InstrumentID]gateway.Contract
}

// NewStatic builds a resolver from a fixed table. Missing security type,
// exchange and currency default to STK, SMART and USD.
func NewStatic(table map[schema.InstrumentID]gateway.Contract) (*Static, error) {
	s := &Static{contracts: make(map[schema.InstrumentID]gateway.Contract, len(table))}
	for id, contract := range table {
		if err := s.Add(id, contract); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers or replaces a contract.
func (s *Static) Add(id schema.InstrumentID, contract gateway.Contract) error {
	if strings.TrimSpace(string(id)) == "" {
		return errs.New("refdata/add", errs.CodeInvalid, errs.WithMessage("instrument id required"))
	}
	if strings.TrimSpace(contract.Symbol) == "" {
		contract.Symbol = string(id)
	}
	if contract.SecType == "" {
		contract.SecType = "STK"
	}
	if contract.Exchange == "" {
		contract.Exchange = "SMART"
	}
	if contract.Currency == "" {
		contract.Currency = "USD"
	}
	contract.SecType = strings.ToUpper(contract.SecType)
	contract.Currency = strings.ToUpper(contract.Currency)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[id] = contract
	return nil
}

// Contract returns the contract registered for instrument.
func (s *Static) Contract(instrument schema.InstrumentID) (gateway.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contract, ok := s.contracts[instrument]
	if !ok {
		return gateway.Contract{}, errs.New("refdata/contract", errs.CodeNotFound,
			errs.WithMessage("unknown instrument"), errs.WithField("instrument", string(instrument)))
	}
	return contract, nil
}

// Instruments lists the registered instrument ids in order.
func (s *Static) Instruments() []schema.InstrumentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.InstrumentID, 0, len(s.contracts))
	for id := range s.contracts {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
