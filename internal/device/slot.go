package device

import (
	"strconv"
	"strings"
	"unicode"
)

// SlotParameterID derives the registry key of a slot parameter.
//
// The slot index is part of the key so two slots sharing a display name never
// collide: ("Default", 0, "AIR_TEMPERATURE") gives "slot_default_0_air_temperature".
// The parameter is slugged from its raw wire string, so unknown parameters
// keep distinct ids too.
func SlotParameterID(slotName string, slotIndex int, parameter string) string {
	return "slot_" + slug(slotName) + "_" + strconv.Itoa(slotIndex) + "_" + slug(parameter)
}

// SlotParameterName builds the display name, e.g. "Default Slot - Air Temperature".
func SlotParameterName(slotName, parameter string) string {
	return slotName + " - " + titleWords(parameter)
}

// NewSlotParameter builds a slot parameter with its derived identifiers.
func NewSlotParameter(host, slotName string, slotIndex int, parameter string, value float64) SlotParameter {
	id := SlotParameterID(slotName, slotIndex, parameter)
	return SlotParameter{
		ID:        id,
		UniqueID:  ScopedID(host, id),
		SlotName:  slotName,
		SlotIndex: slotIndex,
		Parameter: ParseSlotParameterType(parameter),
		Name:      SlotParameterName(slotName, parameter),
		Value:     value,
	}
}

// slug lowercases s and joins its words with single underscores.
func slug(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-'
	})
	return strings.Join(words, "_")
}

// titleWords turns "AIR_TEMPERATURE" into "Air Temperature".
func titleWords(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-'
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
