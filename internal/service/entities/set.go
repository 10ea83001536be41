package entities

// Set bundles every repository built on one SyncContext.
type Set struct {
	Users       *UserRepository
	Farmers     *FarmerRepository
	Prices      *PriceRepository
	Collections *CollectionRepository
	Billing     *BillingRepository
}

func NewSet(sc *SyncContext) *Set {
	prices := NewPriceRepository(sc)
	return &Set{
		Users:       NewUserRepository(sc),
		Farmers:     NewFarmerRepository(sc),
		Prices:      prices,
		Collections: NewCollectionRepository(sc, prices),
		Billing:     NewBillingRepository(sc),
	}
}

// Syncers returns one syncer per entity type, parents first.
func (s *Set) Syncers() []Syncer {
	return []Syncer{
		s.Users,
		s.Farmers,
		s.Prices,
		s.Collections,
		s.Billing,
		s.Billing.DetailSyncer(),
	}
}
