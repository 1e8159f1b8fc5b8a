package device

// AttrID is a SMART attribute identifier (e.g. 5, 197, 194).
type AttrID int

// Well-known attribute IDs interpreted by name. All other IDs are
// carried opaquely in the attribute map.
const (
	AttrReallocatedSectors     AttrID = 5
	AttrPowerOnHours           AttrID = 9
	AttrPowerCycleCount        AttrID = 12
	AttrTemperature            AttrID = 194
	AttrPendingSectors         AttrID = 197
	AttrOfflineUncorrectable   AttrID = 198
	AttrReportedUncorrectable  AttrID = 187
	AttrCommandTimeout         AttrID = 188
	AttrPercentLifetimeRemain  AttrID = 202
	AttrTotalLBAsWritten       AttrID = 241
)

// Attribute is one SMART attribute tuple as produced by the reader.
type Attribute struct {
	RawValue   uint64
	Normalized uint8
	Worst      uint8
	Threshold  uint8
	Flags      uint16
}

// AttributeMap keys raw SMART attribute tuples by attribute ID. A missing
// key means the attribute was absent from the smartctl output entirely —
// distinct from a key present with RawValue == 0.
type AttributeMap map[AttrID]Attribute

// Get returns the attribute and whether it was present at all.
func (m AttributeMap) Get(id AttrID) (Attribute, bool) {
	a, ok := m[id]
	return a, ok
}

// RawOrZero returns the raw value for id, or 0 if absent. Callers that need
// to distinguish "absent" from "present and zero" must use Get instead.
func (m AttributeMap) RawOrZero(id AttrID) uint64 {
	return m[id].RawValue
}
