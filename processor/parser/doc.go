// Package parser turns raw text packets into object packets.
//
// A Parser converts bytes into zero or more records (map[string]any). The
// JSON parser accepts one object or an array of objects. The CSV parser
// reads records with encoding/csv and keys each field by its column name;
// without configured columns the first record of every packet is the
// header.
//
// The data.parse handler wraps a parser: every string or []byte packet on
// "in" yields one object packet per record on "out".
package parser
