// Package parser turns user query strings into query trees. It stems and
// prefixes words the same way the indexer's TermGenerator does, so a
// parser configured like the generator finds what it indexed.
package parser

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Flags accepted by Parse. Values are stable.
const (
	FlagBoolean            = 1
	FlagPhrase             = 2
	FlagLoveHate           = 4
	FlagBooleanAnyCase     = 8
	FlagWildcard           = 16
	FlagPureNot            = 32
	FlagPartial            = 64
	FlagSpellingCorrection = 128
	FlagSynonym            = 256
	FlagCJKNgram           = 2048

	FlagDefault = FlagPhrase | FlagBoolean | FlagLoveHate

	knownFlags = FlagBoolean | FlagPhrase | FlagLoveHate | FlagBooleanAnyCase |
		FlagWildcard | FlagPureNot | FlagPartial | FlagSpellingCorrection |
		FlagSynonym | FlagCJKNgram
	unsupportedFlags = FlagPartial | FlagSpellingCorrection | FlagSynonym
)

// defaultNearWindow is the gap NEAR and ADJ allow when no /n is given.
const defaultNearWindow = 10

type field struct {
	prefixes []string
	boolean  bool
}

// QueryParser holds the configuration used to parse query strings. It is
// not safe for concurrent use; configure one per goroutine or guard it.
type QueryParser struct {
	stemmer     *tokenizer.Stemmer
	strategy    tokenizer.StemStrategy
	stopper     tokenizer.Stopper
	defaultOp   query.Op
	db          database.Reader
	maxWildcard int
	fields      map[string]*field
	ranges      []RangeProcessor
}

// New returns a parser with no stemmer, the StemSome strategy and OR as
// the default operator.
func New() *QueryParser {
	return &QueryParser{
		strategy:  tokenizer.StemSome,
		defaultOp: query.OpOr,
		fields:    make(map[string]*field),
	}
}

func (p *QueryParser) SetStemmer(s *tokenizer.Stemmer) { p.stemmer = s }

func (p *QueryParser) SetStemmingStrategy(s tokenizer.StemStrategy) error {
	if s < tokenizer.StemNone || s > tokenizer.StemAllZ {
		return fmt.Errorf("%w: stemming strategy %d", apperrors.ErrInvalidArgument, int(s))
	}
	p.strategy = s
	return nil
}

// SetStopper sets words to drop from queries. A group made only of
// stopwords keeps them.
func (p *QueryParser) SetStopper(s tokenizer.Stopper) { p.stopper = s }

// SetDefaultOp sets how words without an explicit operator combine.
func (p *QueryParser) SetDefaultOp(op query.Op) error {
	if op != query.OpOr && op != query.OpAnd {
		return fmt.Errorf("%w: default operator must be AND or OR, got %s", apperrors.ErrInvalidArgument, op)
	}
	p.defaultOp = op
	return nil
}

func (p *QueryParser) DefaultOp() query.Op { return p.defaultOp }

// SetDatabase sets the database wildcards are expanded against.
func (p *QueryParser) SetDatabase(db database.Reader) { p.db = db }

// SetMaxWildcardExpansion limits how many terms one wildcard may expand
// to. 0 means no limit.
func (p *QueryParser) SetMaxWildcardExpansion(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: wildcard expansion limit %d", apperrors.ErrInvalidArgument, n)
	}
	p.maxWildcard = n
	return nil
}

// AddPrefix maps "name:" in queries to terms with the given prefix. A
// name may map to several prefixes, which are then ORed.
func (p *QueryParser) AddPrefix(name, prefix string) error {
	return p.addField(name, prefix, false)
}

// AddBooleanPrefix maps "name:value" to the literal term prefix+value,
// used as a filter that does not affect weights. Filters on the same name
// are ORed; filters on different names are ANDed.
func (p *QueryParser) AddBooleanPrefix(name, prefix string) error {
	return p.addField(name, prefix, true)
}

func (p *QueryParser) addField(name, prefix string, boolean bool) error {
	if !isFieldName(name) {
		return fmt.Errorf("%w: field name %q", apperrors.ErrInvalidArgument, name)
	}
	f, ok := p.fields[name]
	if !ok {
		p.fields[name] = &field{prefixes: []string{prefix}, boolean: boolean}
		return nil
	}
	if f.boolean != boolean {
		return fmt.Errorf("%w: field %q cannot be both boolean and free text", apperrors.ErrInvalidOperation, name)
	}
	f.prefixes = append(f.prefixes, prefix)
	return nil
}

// AddRangeProcessor registers a processor for "a..b" ranges. Processors
// are tried in registration order.
func (p *QueryParser) AddRangeProcessor(rp RangeProcessor) {
	p.ranges = append(p.ranges, rp)
}

// Parse parses text with the given flags. Unprefixed words produce
// unprefixed terms.
func (p *QueryParser) Parse(text string, flags int) (*query.Query, error) {
	return p.ParseWithPrefix(text, flags, "")
}

// ParseWithPrefix is Parse with defaultPrefix applied to words that carry
// no field.
func (p *QueryParser) ParseWithPrefix(text string, flags int, defaultPrefix string) (*query.Query, error) {
	if flags&^knownFlags != 0 {
		return nil, fmt.Errorf("%w: unknown query parser flags %#x", apperrors.ErrInvalidArgument, flags&^knownFlags)
	}
	if flags&unsupportedFlags != 0 {
		return nil, fmt.Errorf("%w: query parser flags %#x", apperrors.ErrUnimplemented, flags&unsupportedFlags)
	}
	toks, err := lex(text, flags, p.fields, len(p.ranges) > 0)
	if err != nil {
		return nil, err
	}
	s := &state{p: p, toks: toks, flags: flags, defPrefix: defaultPrefix}
	q, err := s.parseOr()
	if err != nil {
		return nil, err
	}
	if t := s.peek(); t.kind != tEOF {
		if t.kind == tRParen {
			return nil, apperrors.NewQueryParserError(t.pos, "unbalanced parenthesis")
		}
		return nil, apperrors.NewQueryParserError(t.pos, "unexpected %s", t.kind)
	}
	if q == nil {
		return query.MatchNothing(), nil
	}
	return q, nil
}

// state is one parse in progress.
type state struct {
	p         *QueryParser
	toks      []token
	i         int
	flags     int
	defPrefix string
	scope     []string
	termpos   uint32
	snap      *database.Snapshot
}

func (s *state) peek() token { return s.toks[s.i] }

func (s *state) next() token {
	t := s.toks[s.i]
	if t.kind != tEOF {
		s.i++
	}
	return t
}

// operand parses the right-hand side of op and fails if there is none.
func (s *state) operand(op token, parse func() (*query.Query, error)) (*query.Query, error) {
	start := s.i
	q, err := parse()
	if err != nil {
		return nil, err
	}
	if s.i == start {
		return nil, apperrors.NewQueryParserError(op.pos, "%s has no right-hand side", op.kind)
	}
	return q, nil
}

func (s *state) leading(t token) error {
	return apperrors.NewQueryParserError(t.pos, "%s has no left-hand side", t.kind)
}

func (s *state) parseOr() (*query.Query, error) {
	start := s.i
	left, err := s.parseXor()
	if err != nil {
		return nil, err
	}
	kids := []*query.Query{left}
	for s.peek().kind == tOr {
		if s.i == start {
			return nil, s.leading(s.peek())
		}
		op := s.next()
		right, err := s.operand(op, s.parseXor)
		if err != nil {
			return nil, err
		}
		kids = append(kids, right)
	}
	return combine(query.OpOr, kids...), nil
}

func (s *state) parseXor() (*query.Query, error) {
	start := s.i
	left, err := s.parseAnd()
	if err != nil {
		return nil, err
	}
	kids := []*query.Query{left}
	for s.peek().kind == tXor {
		if s.i == start {
			return nil, s.leading(s.peek())
		}
		op := s.next()
		right, err := s.operand(op, s.parseAnd)
		if err != nil {
			return nil, err
		}
		kids = append(kids, right)
	}
	return combine(query.OpXor, kids...), nil
}

func (s *state) parseAnd() (*query.Query, error) {
	start := s.i
	var left *query.Query
	if t := s.peek(); t.kind == tNot {
		if s.flags&FlagPureNot == 0 {
			return nil, apperrors.NewQueryParserError(t.pos, "NOT without a positive term")
		}
		s.next()
		neg, err := s.operand(t, s.parseProb)
		if err != nil {
			return nil, err
		}
		left = andNot(query.MatchAll(), neg)
	} else {
		var err error
		if left, err = s.parseProb(); err != nil {
			return nil, err
		}
	}

	for {
		t := s.peek()
		if t.kind != tAnd && t.kind != tNot {
			return left, nil
		}
		if s.i == start {
			return nil, s.leading(t)
		}
		s.next()
		negate := t.kind == tNot
		if t.kind == tAnd && s.peek().kind == tNot {
			t = s.next()
			negate = true
		}
		right, err := s.operand(t, s.parseProb)
		if err != nil {
			return nil, err
		}
		if negate {
			left = andNot(left, right)
		} else {
			left = combine(query.OpAnd, left, right)
		}
	}
}

// probGroup collects the items of a run of terms without explicit
// operators between them.
type probGroup struct {
	plain    []*query.Query
	stopped  []*query.Query
	love     []*query.Query
	hate     []*query.Query
	hatePos  int
	filters  map[string][]*query.Query
	filterBy []string
}

func (g *probGroup) addFilter(key string, q *query.Query) {
	if g.filters == nil {
		g.filters = make(map[string][]*query.Query)
	}
	if _, ok := g.filters[key]; !ok {
		g.filterBy = append(g.filterBy, key)
	}
	g.filters[key] = append(g.filters[key], q)
}

func startsItem(k tokenKind) bool {
	switch k {
	case tWord, tPhrase, tRange, tLParen, tLove, tHate:
		return true
	}
	return false
}

func (s *state) parseProb() (*query.Query, error) {
	var g probGroup
	for startsItem(s.peek().kind) {
		mod := tEOF
		if k := s.peek().kind; k == tLove || k == tHate {
			mt := s.next()
			mod = mt.kind
			if k := s.peek().kind; !startsItem(k) || k == tLove || k == tHate {
				return nil, apperrors.NewQueryParserError(mt.pos, "%s is not followed by a term", mt.kind)
			}
			if mod == tHate && len(g.hate) == 0 {
				g.hatePos = mt.pos
			}
		}

		t := s.peek()
		var (
			q       *query.Query
			filter  string
			stopped bool
			err     error
		)
		switch t.kind {
		case tLParen:
			q, err = s.group()
		case tPhrase:
			s.next()
			if f := s.p.fields[t.field]; f != nil && f.boolean {
				q, filter = booleanTerms(f, t.text), t.field
			} else {
				q, err = s.phrase(t)
			}
		case tRange:
			s.next()
			var idx int
			q, idx, err = s.rangeQuery(t)
			filter = fmt.Sprintf("\x00range%d", idx)
		case tWord:
			s.next()
			if f := s.p.fields[t.field]; f != nil && f.boolean {
				q, filter = booleanTerms(f, t.text), t.field
			} else if k := s.peek().kind; k == tNear || k == tAdj {
				q, err = s.nearChain(t)
			} else {
				q, stopped, err = s.word(t)
			}
		}
		if err != nil {
			return nil, err
		}
		if q == nil {
			continue
		}

		switch {
		case mod == tHate:
			g.hate = append(g.hate, q)
		case filter != "":
			g.addFilter(filter, q)
		case mod == tLove:
			g.love = append(g.love, q)
		case stopped:
			g.stopped = append(g.stopped, q)
		default:
			g.plain = append(g.plain, q)
		}
	}
	return s.combineGroup(&g)
}

func (s *state) combineGroup(g *probGroup) (*query.Query, error) {
	if len(g.plain) == 0 && len(g.love) == 0 && len(g.filters) == 0 {
		g.plain = g.stopped
	}
	var core *query.Query
	if len(g.plain) > 0 {
		core = combine(s.p.defaultOp, g.plain...)
	}
	if len(g.love) > 0 {
		req := combine(query.OpAnd, g.love...)
		switch {
		case core == nil:
			core = req
		case s.p.defaultOp == query.OpAnd:
			core = combine(query.OpAnd, req, core)
		default:
			core = query.Must(query.OpAndMaybe, req, core)
		}
	}
	if len(g.filters) > 0 {
		groups := make([]*query.Query, 0, len(g.filterBy))
		for _, key := range g.filterBy {
			groups = append(groups, combine(query.OpOr, g.filters[key]...))
		}
		f := combine(query.OpAnd, groups...)
		if core == nil {
			var err error
			if core, err = query.ScaleWeight(f, 0); err != nil {
				return nil, err
			}
		} else {
			core = query.Must(query.OpFilter, core, f)
		}
	}
	if len(g.hate) > 0 {
		if core == nil {
			if s.flags&FlagPureNot == 0 {
				return nil, apperrors.NewQueryParserError(g.hatePos, "query has only excluded terms")
			}
			core = query.MatchAll()
		}
		core = andNot(core, combine(query.OpOr, g.hate...))
	}
	return core, nil
}

func (s *state) group() (*query.Query, error) {
	lp := s.next()
	saved := s.scope
	if lp.field != "" {
		f := s.p.fields[lp.field]
		if f.boolean {
			return nil, apperrors.NewQueryParserError(lp.pos, "boolean field %q cannot qualify a group", lp.field)
		}
		s.scope = f.prefixes
	}
	q, err := s.parseOr()
	s.scope = saved
	if err != nil {
		return nil, err
	}
	if s.peek().kind != tRParen {
		return nil, apperrors.NewQueryParserError(lp.pos, "unbalanced parenthesis")
	}
	s.next()
	if q == nil {
		return nil, apperrors.NewQueryParserError(lp.pos, "empty group")
	}
	return q, nil
}

func (s *state) prefixesFor(name string) []string {
	if f := s.p.fields[name]; f != nil {
		return f.prefixes
	}
	if s.scope != nil {
		return s.scope
	}
	return []string{s.defPrefix}
}

func (s *state) tokenize(text string) []tokenizer.Token {
	return tokenizer.TokenizeWith(text, tokenizer.Options{CJKNgram: s.flags&FlagCJKNgram != 0})
}

// termName mirrors how the TermGenerator names the term for word: terms
// that must carry positions, and capitalised words under StemSome, stay
// unstemmed.
func (s *state) termName(prefix, word string, capitalised, positional bool) string {
	r, _ := utf8.DecodeRuneInString(word)
	if s.p.stemmer.IsNone() || tokenizer.IsCJK(r) {
		return prefix + word
	}
	switch s.p.strategy {
	case tokenizer.StemSome:
		if capitalised || positional {
			return prefix + word
		}
		return "Z" + prefix + s.p.stemmer.Stem(word)
	case tokenizer.StemAll:
		return prefix + s.p.stemmer.Stem(word)
	case tokenizer.StemAllZ:
		return "Z" + prefix + s.p.stemmer.Stem(word)
	}
	return prefix + word
}

func (s *state) leaf(prefix, word string, capitalised, positional bool) *query.Query {
	s.termpos++
	return query.TermAt(s.termName(prefix, word, capitalised, positional), 1, s.termpos)
}

func isCapitalised(text string) bool {
	r, _ := utf8.DecodeRuneInString(text)
	return unicode.IsUpper(r)
}

func hasCJK(toks []tokenizer.Token) bool {
	for _, t := range toks {
		r, _ := utf8.DecodeRuneInString(t.Term)
		if tokenizer.IsCJK(r) {
			return true
		}
	}
	return false
}

// word turns one free-text chunk into a query. A chunk that splits into
// several words, such as "e-mail", becomes a phrase.
func (s *state) word(t token) (*query.Query, bool, error) {
	prefixes := s.prefixesFor(t.field)
	if stem, ok := strings.CutSuffix(t.text, "*"); ok && s.flags&FlagWildcard != 0 && stem != "" {
		q, err := s.wildcard(prefixes, stem, t.pos)
		return q, false, err
	}
	toks := s.tokenize(t.text)
	if len(toks) == 0 {
		return nil, false, nil
	}
	capitalised := isCapitalised(t.text)
	if len(toks) == 1 {
		word := toks[0].Term
		alts := make([]*query.Query, 0, len(prefixes))
		for _, prefix := range prefixes {
			alts = append(alts, s.leaf(prefix, word, capitalised, false))
		}
		stopped := s.p.stopper != nil && s.p.stopper.IsStop(word)
		return combine(query.OpOr, alts...), stopped, nil
	}
	q, err := s.sequence(prefixes, toks)
	return q, false, err
}

func (s *state) phrase(t token) (*query.Query, error) {
	toks := s.tokenize(t.text)
	if len(toks) == 0 {
		return nil, nil
	}
	return s.sequence(s.prefixesFor(t.field), toks)
}

// sequence matches words that must appear together: as a phrase, or as
// an AND of n-grams for CJK text.
func (s *state) sequence(prefixes []string, toks []tokenizer.Token) (*query.Query, error) {
	cjk := hasCJK(toks)
	alts := make([]*query.Query, 0, len(prefixes))
	for _, prefix := range prefixes {
		leaves := make([]*query.Query, 0, len(toks))
		for _, tok := range toks {
			leaves = append(leaves, s.leaf(prefix, tok.Term, false, true))
		}
		if cjk || s.flags&FlagPhrase == 0 {
			op := query.OpAnd
			if !cjk {
				op = s.p.defaultOp
			}
			alts = append(alts, combine(op, leaves...))
			continue
		}
		q, err := query.Positional(query.OpPhrase, 0, leaves...)
		if err != nil {
			return nil, err
		}
		alts = append(alts, q)
	}
	return combine(query.OpOr, alts...), nil
}

// maxNearExpansion bounds the positional queries one NEAR chain over
// multi-prefix fields may expand to.
const maxNearExpansion = 256

// nearChain parses "a NEAR b NEAR/3 c" or the ordered ADJ form. The window
// is the widest gap asked for plus the number of words. Each word is tried
// under every prefix of its field, so the result ORs one positional query
// per combination of prefixes.
func (s *state) nearChain(first token) (*query.Query, error) {
	words := []token{first}
	op := query.OpNear
	if s.peek().kind == tAdj {
		op = query.OpPhrase
	}
	var gap uint32
	for k := s.peek().kind; k == tNear || k == tAdj; k = s.peek().kind {
		opTok := s.next()
		gap = max(gap, opTok.window)
		w := s.peek()
		if w.kind != tWord || w.field != "" && s.p.fields[w.field].boolean {
			return nil, apperrors.NewQueryParserError(opTok.pos, "%s must join two words", opTok.kind)
		}
		words = append(words, s.next())
	}

	var slots [][]*query.Query
	combos := 1
	for _, w := range words {
		prefixes := s.prefixesFor(w.field)
		lastPos := -1
		for _, tok := range s.tokenize(w.text) {
			// CJK bigrams share the position of their first character.
			if tok.Position == lastPos {
				continue
			}
			lastPos = tok.Position
			alts := make([]*query.Query, 0, len(prefixes))
			for _, prefix := range prefixes {
				alts = append(alts, s.leaf(prefix, tok.Term, false, true))
			}
			slots = append(slots, alts)
			combos *= len(alts)
			if combos > maxNearExpansion {
				return nil, apperrors.NewQueryParserError(first.pos, "%s over these fields expands to more than %d queries", op, maxNearExpansion)
			}
		}
	}
	window := gap + uint32(len(slots))

	var out []*query.Query
	pick := make([]*query.Query, len(slots))
	var expand func(i int) error
	expand = func(i int) error {
		if i == len(slots) {
			q, err := query.Positional(op, window, slices.Clone(pick)...)
			if err != nil {
				return err
			}
			out = append(out, q)
			return nil
		}
		for _, alt := range slots[i] {
			pick[i] = alt
			if err := expand(i + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := expand(0); err != nil {
		return nil, err
	}
	return combine(query.OpOr, out...), nil
}

func (s *state) wildcard(prefixes []string, stem string, pos int) (*query.Query, error) {
	if s.p.db == nil {
		return nil, apperrors.NewQueryParserError(pos, "wildcard %q needs a database", stem+"*")
	}
	if s.snap == nil {
		snap, err := s.p.db.Snapshot()
		if err != nil {
			return nil, err
		}
		s.snap = snap
	}
	word := tokenizer.Normalize(stem)
	var terms []*query.Query
	for _, prefix := range prefixes {
		for term, df := range s.snap.Terms(prefix + word) {
			if df == 0 {
				continue
			}
			terms = append(terms, query.TermAt(term, 1, s.termpos+1))
			if s.p.maxWildcard > 0 && len(terms) > s.p.maxWildcard {
				return nil, apperrors.NewQueryParserError(pos, "wildcard %q expands to more than %d terms", stem+"*", s.p.maxWildcard)
			}
		}
	}
	if err := s.snap.Valid(); err != nil {
		return nil, err
	}
	s.termpos++
	if len(terms) == 0 {
		return query.MatchNothing(), nil
	}
	return query.New(query.OpSynonym, terms...)
}

func (s *state) rangeQuery(t token) (*query.Query, int, error) {
	begin, end, _ := strings.Cut(t.text, "..")
	for i, rp := range s.p.ranges {
		q, err := rp.Process(begin, end)
		if err != nil {
			return nil, 0, apperrors.NewQueryParserError(t.pos, "range %q: %v", t.text, err)
		}
		if q != nil {
			return q, i, nil
		}
	}
	return nil, 0, apperrors.NewQueryParserError(t.pos, "no range processor accepts %q", t.text)
}

func booleanTerms(f *field, value string) *query.Query {
	alts := make([]*query.Query, 0, len(f.prefixes))
	for _, prefix := range f.prefixes {
		alts = append(alts, query.Term(prefix+value))
	}
	return combine(query.OpOr, alts...)
}

// combine is query.New for operators known to be valid, treating nil
// children as absent.
func combine(op query.Op, kids ...*query.Query) *query.Query {
	present := kids[:0:0]
	for _, k := range kids {
		if k != nil {
			present = append(present, k)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return query.Must(op, present...)
}

func andNot(pos, neg *query.Query) *query.Query {
	switch {
	case pos == nil:
		return nil
	case neg == nil:
		return pos
	}
	return query.Must(query.OpAndNot, pos, neg)
}
