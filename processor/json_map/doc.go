// Package jsonmap provides the event.map handler, which rewrites the fields
// of object packets: mappings rename or transform fields, add_fields sets
// constants and remove_fields drops keys. The input packet is never
// modified; a new object is sent on "out".
package jsonmap
