package searchdb

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	boostForContent      = 3.0
	boostForFileName     = 2.0
	boostForPath         = 1.0
	boostForPhraseMatch  = 5.0
	boostForPartialMatch = 1.5
)

// buildSearchQuery requires every quoted phrase to appear in the content and
// scores the remaining terms against content, name and path.
func buildSearchQuery(queryString string) query.Query {
	queryString = strings.ToLower(strings.TrimSpace(queryString))
	if queryString == "" {
		return bleve.NewMatchAllQuery()
	}

	phrases, remaining := parseQuotedQuery(queryString)

	var termsQuery query.Query
	if remaining != "" {
		termsQuery = buildTermsQuery(remaining)
	}

	if len(phrases) == 0 {
		if termsQuery == nil {
			return bleve.NewMatchNoneQuery()
		}
		return termsQuery
	}

	conjunction := bleve.NewConjunctionQuery()
	for _, phrase := range phrases {
		phraseQuery := bleve.NewMatchPhraseQuery(phrase)
		phraseQuery.SetField(indexFieldContent)
		phraseQuery.SetBoost(boostForPhraseMatch)
		conjunction.AddQuery(phraseQuery)
	}
	if termsQuery != nil {
		conjunction.AddQuery(termsQuery)
	}

	return conjunction
}

func buildTermsQuery(terms string) query.Query {
	disjunction := bleve.NewDisjunctionQuery()

	contentQuery := bleve.NewMatchQuery(terms)
	contentQuery.SetField(indexFieldContent)
	contentQuery.SetBoost(boostForContent)
	disjunction.AddQuery(contentQuery)

	nameQuery := bleve.NewMatchQuery(terms)
	nameQuery.SetField(indexFieldName)
	nameQuery.SetBoost(boostForFileName)
	disjunction.AddQuery(nameQuery)

	pathQuery := bleve.NewMatchQuery(terms)
	pathQuery.SetField(indexFieldPath)
	pathQuery.SetBoost(boostForPath)
	disjunction.AddQuery(pathQuery)

	phraseQuery := bleve.NewMatchPhraseQuery(terms)
	phraseQuery.SetField(indexFieldContent)
	phraseQuery.SetBoost(boostForPhraseMatch)
	disjunction.AddQuery(phraseQuery)

	if len(terms) > 2 && !strings.Contains(terms, " ") {
		namePrefix := bleve.NewPrefixQuery(terms)
		namePrefix.SetField(indexFieldName)
		namePrefix.SetBoost(boostForPartialMatch)
		disjunction.AddQuery(namePrefix)

		contentPrefix := bleve.NewPrefixQuery(terms)
		contentPrefix.SetField(indexFieldContent)
		contentPrefix.SetBoost(boostForPartialMatch)
		disjunction.AddQuery(contentPrefix)
	}

	return disjunction
}

// parseQuotedQuery splits out double-quoted phrases. Empty phrases are
// dropped and the unquoted remainder is returned with whitespace collapsed.
// An unterminated quote runs to the end of the input.
func parseQuotedQuery(input string) ([]string, string) {
	var phrases []string
	var rest strings.Builder

	for {
		open := strings.IndexByte(input, '"')
		if open < 0 {
			rest.WriteString(input)
			break
		}
		rest.WriteString(input[:open])
		rest.WriteByte(' ')

		input = input[open+1:]
		phrase := input
		if end := strings.IndexByte(input, '"'); end >= 0 {
			phrase = input[:end]
			input = input[end+1:]
		} else {
			input = ""
		}

		if phrase = strings.Join(strings.Fields(phrase), " "); phrase != "" {
			phrases = append(phrases, phrase)
		}
	}

	return phrases, strings.Join(strings.Fields(rest.String()), " ")
}
