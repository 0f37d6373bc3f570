package interpreter

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/ops"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

func (r *run) me() *model.PlayerState {
	return r.o.State().Players[r.req.PlayerID]
}

func (r *run) opp() *model.PlayerState {
	p, _ := r.o.State().Opponent(r.req.PlayerID)
	return p
}

func (r *run) stepAction(i int) plan.Action {
	return r.plan.Steps[i].Action
}

// producesCards reports whether a step leaves a card list in outputs.
func producesCards(a plan.Action) bool {
	switch a {
	case plan.ActionQueryDeckCandidates, plan.ActionQueryDiscardCandidates, plan.ActionQueryPokemonInPlay,
		plan.ActionQueryBench, plan.ActionQueryOpponentBench, plan.ActionQueryStadiumAndTools,
		plan.ActionRevealTopCards, plan.ActionWaitForSelection, plan.ActionCheckStadiumInPlay:
		return true
	}
	return false
}

func (r *run) depFailed(d int) bool {
	if r.skipped[d] {
		return true
	}
	a := r.stepAction(d)
	switch {
	case a == plan.ActionCheckStadiumInPlay:
		return r.values[d] == 0
	case producesCards(a):
		return len(r.outputs[d]) == 0
	}
	return false
}

func (r *run) shouldSkip(i int, s plan.Step) bool {
	switch s.SkipIf {
	case plan.SkipNoStadium:
		if _, _, ok := r.o.State().StadiumInPlay(); !ok {
			return true
		}
		for _, d := range s.DependsOn {
			if r.depFailed(d) {
				return true
			}
		}
	case plan.SkipNoSelection:
		for _, d := range s.DependsOn {
			if r.skipped[d] || (r.stepAction(d) == plan.ActionWaitForSelection && len(r.outputs[d]) == 0) {
				return true
			}
		}
	case plan.SkipEmptyBench:
		if s.Action == plan.ActionSwitchOpponentPokemon {
			return len(r.opp().Bench()) == 0
		}
		return len(r.me().Bench()) == 0
	case plan.SkipConditionFailed:
		for _, d := range s.DependsOn {
			if r.depFailed(d) {
				return true
			}
		}
	}
	return false
}

// selected returns the card ids chosen by the selection steps the step
// depends on, falling back to any card list among its dependencies.
func (r *run) selected(s plan.Step) []string {
	var out []string
	for _, d := range s.DependsOn {
		if r.stepAction(d) == plan.ActionWaitForSelection {
			out = append(out, r.outputs[d]...)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, d := range s.DependsOn {
		out = append(out, r.outputs[d]...)
	}
	return out
}

func (r *run) hasSelectionDep(s plan.Step) bool {
	return slices.ContainsFunc(s.DependsOn, func(d int) bool {
		return r.stepAction(d) == plan.ActionWaitForSelection
	})
}

func (r *run) candidate(uid string) (Candidate, bool) {
	card, loc, ok := r.o.State().Locate(uid)
	if !ok {
		return Candidate{}, false
	}
	c := Candidate{UID: uid, Name: card.Name(), Zone: loc.Zone.String(), OwnerID: loc.PlayerID}
	if loc.Attached {
		c.Zone = "attached"
	}
	if card.Definition != nil {
		c.Category = string(card.Definition.Category)
		c.HP = card.RemainingHP()
	}
	return c, true
}

// candidates lists what a selection step may choose from.
func (r *run) candidates(s plan.Step) ([]Candidate, error) {
	var uids []string
	fromDep := false
	for _, d := range s.DependsOn {
		if a := r.stepAction(d); producesCards(a) && a != plan.ActionWaitForSelection {
			uids = append(uids, r.outputs[d]...)
			fromDep = true
		}
	}
	if !fromDep {
		me := r.me()
		var cards []*model.CardInstance
		switch s.Params.Source {
		case "hand", "":
			for _, c := range me.Zone(model.ZoneHand) {
				if c.UID != r.req.SourceUID {
					cards = append(cards, c)
				}
			}
		case "deck":
			cards = me.Zone(model.ZoneDeck)
		case "discard":
			cards = me.Zone(model.ZoneDiscard)
		case "in_play":
			cards = me.InPlay()
		case "bench":
			cards = me.Bench()
		default:
			return nil, model.MalformedPlanf("unknown selection source %q", s.Params.Source)
		}
		for _, c := range cards {
			uids = append(uids, c.UID)
		}
	}

	var out []Candidate
	for _, uid := range uids {
		card, _, ok := r.o.State().Locate(uid)
		if !ok || !s.Params.Criteria.Matches(card.Definition) {
			continue
		}
		if c, ok := r.candidate(uid); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *run) exec(i int, s plan.Step) error {
	pid := r.req.PlayerID
	me, opp := r.me(), r.opp()
	g := r.o.State()

	switch s.Action {
	case plan.ActionQueryDeckCandidates:
		r.outputs[i] = filterZone(me, model.ZoneDeck, s.Params.Criteria)
	case plan.ActionQueryDiscardCandidates:
		r.outputs[i] = filterZone(me, model.ZoneDiscard, s.Params.Criteria)
	case plan.ActionQueryPokemonInPlay:
		for _, c := range me.InPlay() {
			if s.Params.ExcludeToolAttached && c.AttachedTool != "" {
				continue
			}
			if s.Params.Criteria.Matches(c.Definition) {
				r.outputs[i] = append(r.outputs[i], c.UID)
			}
		}
	case plan.ActionQueryBench:
		r.outputs[i] = cardUIDs(me.Bench())
	case plan.ActionQueryOpponentBench:
		r.outputs[i] = cardUIDs(opp.Bench())
	case plan.ActionQueryStadiumAndTools:
		if st, _, ok := g.StadiumInPlay(); ok {
			r.outputs[i] = append(r.outputs[i], st.UID)
		}
		for _, seat := range g.Seats {
			for _, c := range g.Players[seat].InPlay() {
				if c.AttachedTool != "" {
					r.outputs[i] = append(r.outputs[i], c.AttachedTool)
				}
			}
		}
	case plan.ActionQueryPrizeCounts:
		r.values[i] = me.PrizesRemaining
		r.out.Data["prizes"] = map[string]int{pid: me.PrizesRemaining, opp.PlayerID: opp.PrizesRemaining}
	case plan.ActionQueryOpponentPrizeCount:
		r.values[i] = model.StartingPrizes - opp.PrizesRemaining
	case plan.ActionRevealTopCards:
		cards, err := r.o.RevealTop(pid, s.Params.Count)
		if err != nil {
			return err
		}
		r.outputs[i] = cardUIDs(cards)
		r.out.Data["revealed"] = r.outputs[i]

	case plan.ActionMoveCards:
		return r.moveCards(s)
	case plan.ActionMoveCardsFromDiscardDeck:
		for _, uid := range r.selected(s) {
			if err := r.o.MoveCard(pid, model.ZoneDiscard, model.ZoneDeck, uid, -1); err != nil {
				return err
			}
		}

	case plan.ActionAttachEnergyCards:
		return r.attachEnergyCards(s)
	case plan.ActionAttachEnergy:
		host := r.req.Targets[r.req.SourceUID]
		if host == "" {
			if a := me.Active(); a != nil {
				host = a.UID
			}
		}
		if err := r.o.AttachEnergy(pid, host, r.req.SourceUID, model.ZoneHand); err != nil {
			return err
		}
		_, err := r.o.TrackUsage(pid, playerKey(model.UsageEnergyAttach))
		return err
	case plan.ActionAttachTool:
		sel := r.selected(s)
		if len(sel) == 0 {
			return model.Validationf("choose a Pokémon for the Tool")
		}
		return r.o.AttachTool(pid, sel[0], r.req.SourceUID)

	case plan.ActionDiscardFrom:
		return r.discardFrom(s)
	case plan.ActionDiscardTrainer:
		return r.discardSource()

	case plan.ActionShuffleDeck:
		_, err := r.o.Shuffle(pid, model.ZoneDeck)
		return err
	case plan.ActionShuffleHandToBottom:
		if err := r.discardSource(); err != nil {
			return err
		}
		for _, p := range r.players(s.Params.BothPlayers) {
			var err error
			if s.Params.Method == "bottom" {
				err = r.o.ShuffleHandToBottom(p)
			} else {
				err = r.o.ShuffleHandIntoDeck(p)
			}
			if err != nil {
				return err
			}
		}
	case plan.ActionDrawCards:
		for _, p := range r.players(s.Params.BothPlayers) {
			if err := r.draw(p, s.Params.Count); err != nil {
				return err
			}
		}
	case plan.ActionDrawCardsByPrizes:
		for _, p := range r.players(s.Params.BothPlayers) {
			if err := r.draw(p, g.Players[p].PrizesRemaining); err != nil {
				return err
			}
		}

	case plan.ActionMovePokemonToHand:
		for _, uid := range r.selected(s) {
			_, owner, _, ok := g.FindInPlay(uid)
			if !ok {
				return model.NotFoundf("pokemon %s not in play", uid)
			}
			if err := r.o.MovePokemonToHand(owner, uid, s.Params.DiscardAttached); err != nil {
				return err
			}
		}
	case plan.ActionHealDamage:
		target := r.resolveHost(s, s.Params.Target)
		if target == "" {
			return nil
		}
		amount := s.Params.Count
		if amount == plan.Unbounded {
			amount = -1
		}
		healed, err := r.o.Heal(target, amount)
		r.out.Data["healed"] = healed
		return err
	case plan.ActionMoveDamageCounters:
		from, to := r.resolveText(s.Params.Source), r.resolveText(s.Params.Target)
		if from == "" || to == "" || from == to {
			return nil
		}
		counters := s.Params.Count
		if counters == plan.Unbounded {
			counters = 1 << 20
		}
		if _, err := r.o.MoveDamage(from, to, counters); err != nil {
			return err
		}
		return r.checkKO(to)
	case plan.ActionPutDamageCounters:
		target := r.resolveHost(s, s.Params.Target)
		if target == "" {
			return nil
		}
		if _, err := r.o.UpdateDamage(target, s.Params.Count*ops.DamageCounter); err != nil {
			return err
		}
		return r.checkKO(target)
	case plan.ActionMoveEnergy:
		return r.moveEnergy(s)
	case plan.ActionDevolvePokemon:
		target := r.resolveHost(s, s.Params.Target)
		_, owner, _, ok := g.FindInPlay(target)
		if !ok {
			return model.NotFoundf("pokemon %s not in play", target)
		}
		_, err := r.o.Devolve(owner, target)
		return err

	case plan.ActionCalculateDamage:
		return r.damage(s)
	case plan.ActionEndTurn:
		r.out.EndTurn = true

	case plan.ActionCheckStadiumInPlay:
		if st, _, ok := g.StadiumInPlay(); ok {
			r.values[i] = 1
			r.outputs[i] = []string{st.UID}
		}
	case plan.ActionDiscardStadium:
		if _, _, ok := g.StadiumInPlay(); ok {
			_, err := r.o.DiscardStadium()
			return err
		}
	case plan.ActionPlayStadium:
		return r.o.PlayStadium(pid, r.req.SourceUID)

	case plan.ActionSwitchOpponentPokemon:
		sel := r.selected(s)
		if len(sel) == 0 {
			return nil
		}
		return r.o.SwapActiveWithBench(opp.PlayerID, sel[0])
	case plan.ActionSwitchPokemon:
		sel := r.selected(s)
		if len(sel) == 0 {
			return nil
		}
		return r.o.SwapActiveWithBench(pid, sel[0])
	case plan.ActionEvolveWithRareCandy:
		return r.rareCandy(s)

	default:
		return model.MalformedPlanf("unknown action %q", s.Action)
	}
	return nil
}

func (r *run) players(both bool) []string {
	if both {
		return slices.Clone(r.o.State().Seats)
	}
	return []string{r.req.PlayerID}
}

func (r *run) draw(playerID string, n int) error {
	drawn, err := r.o.Draw(playerID, n)
	if err != nil {
		return err
	}
	if playerID == r.req.PlayerID {
		r.out.Drawn = append(r.out.Drawn, cardUIDs(drawn)...)
	}
	return nil
}

// discardSource puts the played Trainer into the discard pile if it is
// still in hand.
func (r *run) discardSource() error {
	if r.plan.EffectType != plan.EffectTrainer || r.req.SourceUID == "" {
		return nil
	}
	if _, _, ok := r.me().FindIn(model.ZoneHand, r.req.SourceUID); !ok {
		return nil
	}
	return r.o.Discard(r.req.PlayerID, []string{r.req.SourceUID}, "trainer")
}

func (r *run) checkKO(uid string) error {
	if _, _, _, ok := r.o.State().FindInPlay(uid); !ok {
		return nil
	}
	ko, err := r.o.CheckKO(uid)
	if err != nil {
		return err
	}
	if ko {
		r.out.KnockedOut = append(r.out.KnockedOut, uid)
	}
	return nil
}

func (r *run) moveCards(s plan.Step) error {
	g := r.o.State()
	uids := r.selected(s)
	switch s.Params.Target {
	case "discard":
		byOwner := make(map[string][]string)
		for _, uid := range uids {
			_, loc, ok := g.Locate(uid)
			if !ok {
				return model.NotFoundf("card %s not found", uid)
			}
			byOwner[loc.PlayerID] = append(byOwner[loc.PlayerID], uid)
		}
		for _, seat := range g.Seats {
			if len(byOwner[seat]) == 0 {
				continue
			}
			if err := r.o.Discard(seat, byOwner[seat], "effect"); err != nil {
				return err
			}
		}
		return nil
	case "lost_zone":
		for _, uid := range uids {
			_, loc, ok := g.Locate(uid)
			if !ok {
				return model.NotFoundf("card %s not found", uid)
			}
			if err := r.o.SendToLostZone(loc.PlayerID, uid); err != nil {
				return err
			}
		}
		return nil
	}

	to, err := model.ParseZone(s.Params.Target)
	if err != nil {
		return model.MalformedPlanf("move_cards: %v", err)
	}
	for _, uid := range uids {
		_, loc, ok := g.Locate(uid)
		if !ok || loc.Attached {
			return model.NotFoundf("card %s not found", uid)
		}
		if to == model.ZoneBench && g.Players[loc.PlayerID].BenchFull() {
			r.in.logger.Warn("bench full, remaining cards stay in place",
				zap.String("player_id", loc.PlayerID),
				zap.String("card_id", uid),
			)
			break
		}
		if err := r.o.MoveCard(loc.PlayerID, loc.Zone, to, uid, -1); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) attachEnergyCards(s plan.Step) error {
	g := r.o.State()
	fallback := r.resolveText(s.Params.Target)
	for _, uid := range r.selected(s) {
		_, loc, ok := g.Locate(uid)
		if !ok || loc.Attached {
			return model.NotFoundf("energy %s not found", uid)
		}
		host := r.req.Targets[uid]
		if host == "" {
			host = fallback
		}
		if host == "" {
			return model.Validationf("no Pokémon to attach %s to", uid)
		}
		if err := r.o.AttachEnergy(loc.PlayerID, host, uid, loc.Zone); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) discardFrom(s plan.Step) error {
	pid := r.req.PlayerID
	if s.Params.Source == "hand" {
		var uids []string
		if s.Params.Count == plan.Unbounded {
			for _, c := range r.me().Zone(model.ZoneHand) {
				if c.UID != r.req.SourceUID {
					uids = append(uids, c.UID)
				}
			}
		} else {
			uids = r.selected(s)
		}
		if len(uids) == 0 {
			return nil
		}
		return r.o.Discard(pid, uids, "effect")
	}

	host := r.resolveHost(s, s.Params.Source)
	card, owner, _, ok := r.o.State().FindInPlay(host)
	if !ok {
		return nil
	}
	ct := strings.ToLower(s.Params.CardType)
	switch {
	case strings.Contains(ct, "tool"):
		if card.AttachedTool == "" {
			return nil
		}
		_, err := r.o.DiscardTool(owner, host)
		return err
	case strings.Contains(ct, "energy"):
		energyType := s.Params.EnergyType
		if energyType == "" {
			energyType = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(ct, "basic "), "energy"))
		}
		var uids []string
		for _, e := range r.o.State().Players[owner].AttachedEnergyCards(card) {
			if energyType != "" && e.Definition != nil && !strings.EqualFold(e.Definition.EnergyType, energyType) {
				continue
			}
			uids = append(uids, e.UID)
		}
		if s.Params.Count > 0 && len(uids) > s.Params.Count {
			uids = uids[:s.Params.Count]
		}
		if len(uids) == 0 {
			return nil
		}
		return r.o.DiscardEnergy(owner, host, uids)
	}
	r.in.logger.Warn("discard target not recognised",
		zap.String("plan", r.plan.Key().String()),
		zap.String("card_type", s.Params.CardType),
	)
	return nil
}

func (r *run) moveEnergy(s plan.Step) error {
	g := r.o.State()
	from := r.resolveText(s.Params.Source)
	to := r.resolveText(s.Params.Target)
	if r.hasSelectionDep(s) {
		if sel := r.selected(s); len(sel) > 0 {
			to = sel[0]
		}
	}
	host, owner, _, ok := g.FindInPlay(from)
	if !ok || to == "" || to == from {
		return nil
	}
	energyType := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(s.Params.EnergyType), "basic"))
	var uids []string
	for _, e := range g.Players[owner].AttachedEnergyCards(host) {
		if energyType != "" && e.Definition != nil && !strings.EqualFold(e.Definition.EnergyType, energyType) {
			continue
		}
		uids = append(uids, e.UID)
	}
	if s.Params.Count > 0 && len(uids) > s.Params.Count {
		uids = uids[:s.Params.Count]
	}
	for _, uid := range uids {
		if err := r.o.MoveEnergy(owner, uid, from, to); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) rareCandy(s plan.Step) error {
	if len(s.DependsOn) < 2 {
		return model.MalformedPlanf("evolve_with_rare_candy needs a Basic and a Stage 2 selection")
	}
	basics, stage2s := r.outputs[s.DependsOn[0]], r.outputs[s.DependsOn[1]]
	if len(basics) == 0 || len(stage2s) == 0 {
		return model.Validationf("choose a Basic Pokémon and a Stage 2 card")
	}
	g := r.o.State()
	if rules.IsFirstTurn(g.Turn, g.FirstPlayer, r.req.PlayerID) {
		return model.Validationf("Pokémon can't evolve during your first turn")
	}
	basic, _, ok := r.me().FindInPlay(basics[0])
	if !ok {
		return model.NotFoundf("pokemon %s not in play", basics[0])
	}
	if basic.EnteredTurn == g.Turn.Number {
		return model.Validationf("%s was put into play this turn", basic.Name())
	}
	stage2, _, ok := r.me().FindIn(model.ZoneHand, stage2s[0])
	if !ok {
		return model.NotFoundf("card %s not in hand", stage2s[0])
	}
	if stage2.Definition == nil || stage2.Definition.Stage != model.StageTwo {
		return model.Validationf("%s is not a Stage 2 Pokémon", stage2.Name())
	}
	if r.in.cards != nil {
		if stage1, found := r.in.cards(stage2.Definition.EvolvesFrom); found && !strings.EqualFold(stage1.EvolvesFrom, basic.Name()) {
			return model.Validationf("%s does not evolve from %s", stage2.Name(), basic.Name())
		}
	}
	return r.o.Evolve(r.req.PlayerID, basic.UID, stage2.UID)
}

// resolveHost picks the Pokémon a step acts on: an earlier selection when
// there is one, otherwise the Pokémon named by text.
func (r *run) resolveHost(s plan.Step, text string) string {
	if r.hasSelectionDep(s) {
		if sel := r.selected(s); len(sel) > 0 {
			return sel[0]
		}
	}
	return r.resolveText(text)
}

// resolveText maps a Pokémon reference from rule text to a uid. Choices the
// text leaves open are taken from the request's damage targets, then fall
// back to the first Benched Pokémon.
func (r *run) resolveText(text string) string {
	l := strings.ToLower(text)
	me, opp := r.me(), r.opp()
	active := func(p *model.PlayerState) string {
		if a := p.Active(); a != nil {
			return a.UID
		}
		return ""
	}
	chosen := func(p *model.PlayerState, benchOnly bool) string {
		for _, uid := range r.req.DamageTargets {
			if _, z, ok := p.FindInPlay(uid); ok && (!benchOnly || z == model.ZoneBench) {
				return uid
			}
		}
		if benchOnly {
			if b := p.Bench(); len(b) > 0 {
				return b[0].UID
			}
		}
		return active(p)
	}

	switch {
	case l == "", strings.Contains(l, "this pokémon"), strings.Contains(l, "this pokemon"), l == "pokemon":
		if _, _, ok := me.FindInPlay(r.req.SourceUID); ok {
			return r.req.SourceUID
		}
		return active(me)
	case strings.Contains(l, "opponent"):
		if strings.Contains(l, "active") {
			return active(opp)
		}
		return chosen(opp, strings.Contains(l, "benched"))
	case strings.Contains(l, "your active"):
		return active(me)
	case strings.Contains(l, "benched"), strings.Contains(l, "1 of your"), strings.Contains(l, "your pokémon"):
		return chosen(me, strings.Contains(l, "benched"))
	}
	return active(me)
}

func filterZone(p *model.PlayerState, z model.Zone, crit *plan.Criteria) []string {
	var out []string
	for _, c := range p.Zone(z) {
		if crit.Matches(c.Definition) {
			out = append(out, c.UID)
		}
	}
	return out
}

func cardUIDs(cards []*model.CardInstance) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.UID)
	}
	return out
}
