// Package jsonfilter provides the event.filter handler. Object packets
// (map[string]any) arriving on "in" are checked against a list of rules;
// packets matching every rule go to "out" and the rest to "rejected".
//
// Rules are given as the "rules" parameter:
//
//	[
//	  {"field": "status", "operator": "eq", "value": "active"},
//	  {"field": "position.alt", "operator": "gt", "value": 100}
//	]
//
// Operators: eq, ne, gt, gte, lt, lte, contains. Fields use dot notation
// for nested objects. A rule on a missing field never matches, and an empty
// rule list passes everything.
package jsonfilter
