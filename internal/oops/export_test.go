package oops

// NewFlatArrayKlassForTest builds a flat array klass of elem the way the
// flattening collaborator would.
func NewFlatArrayKlassForTest(u *Universe, elem *Klass) *Klass {
	k := &Klass{
		id:        u.nextKlassID(),
		name:      "[Q" + elem.name + ";",
		kind:      KindFlatArray,
		access:    AccPublic | AccAbstract | AccFinal,
		loader:    elem.loader,
		super:     u.object,
		secondary: u.arrayInterfaces,
		dimension: 1,
		element:   elem,
		bottom:    elem,
		nullFree:  true,
	}
	k.mirror = &Mirror{klass: k, name: k.ExternalName()}
	return k
}
