// Package query parses search text and evaluates it against items.
//
// A query is a sequence of clauses that must all hold. A clause is one of
//
//	word          free text matched against an item's words
//	"some words"  an exact phrase
//	name<op>value a filter, e.g. t:Texture, layer>=4, ref={t:Prefab}
//	(a or b)      a group
//	-clause       a negated clause
//	+pragma       an evaluation switch such as +fuzzy
//
// The bare words and, or and not are keywords in any letter case: "a or b"
// is a disjunction and "not a" negates a. They are never searched for as
// text; quote them ("not") to look for the word itself.
//
// Parsing never fails. Problems are reported in Query.Errors with their
// position and the offending clause is left out of the tree.
package query
