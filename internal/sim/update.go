package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/greylag/landgrab/server/internal/geo"
	"github.com/greylag/landgrab/server/internal/mapgen"
	"github.com/greylag/landgrab/server/internal/model"
)

// Advance runs one tick: apply queued commands, advance arrows and resolve
// combat, expand territories, grow populations and resources, then detect
// defeats and victory. It returns a new state; prev is never mutated.
//
// Determinism: nations are processed in ascending owner order, commands in
// FIFO order, expansion candidates in raster order, and all randomness flows
// through the caller-owned PRNG.
func Advance(prev *State, m *mapgen.Map, cmds []Command, cfg Config, rng *mapgen.Rand) (*State, error) {
	if prev.Status == model.RoomEnded {
		return prev, nil
	}
	next := prev.Clone()
	next.Tick++

	u := &updater{
		state:       next,
		m:           m,
		cfg:         cfg,
		rng:         rng,
		cloned:      make(map[string]bool),
		transferred: geo.NewSet(),
		prevSize:    make(map[string]int, len(prev.Nations)),
	}
	for owner, n := range prev.Nations {
		u.prevSize[owner] = n.Territory.Len()
	}

	u.applyCommands(cmds)
	u.advanceArrows()
	u.expandTerritories()
	u.growNations()
	u.autoCities()
	u.resolveDefeats()
	u.checkVictory()
	return next, nil
}

type updater struct {
	state *State
	m     *mapgen.Map
	cfg   Config
	rng   *mapgen.Rand

	cloned      map[string]bool // owners whose territory set is already copied
	transferred geo.Set         // cells that changed hands this tick
	prevSize    map[string]int
}

// territoryFor returns the nation's territory set, cloning it first if this
// tick has not written to it yet (copy-on-write against prior snapshots).
func (u *updater) territoryFor(n *model.Nation) geo.Set {
	if !u.cloned[n.Owner] {
		n.Territory = n.Territory.Clone()
		u.cloned[n.Owner] = true
	}
	return n.Territory
}

func (u *updater) claimCell(n *model.Nation, x, y int) {
	p := geo.Pack(x, y)
	if prev := u.state.Owners[p]; prev != "" && prev != n.Owner {
		if old := u.state.Nations[prev]; old != nil {
			u.territoryFor(old).Remove(x, y)
		}
	}
	u.territoryFor(n).Add(x, y)
	u.state.Owners[p] = n.Owner
}

func (u *updater) releaseAll(n *model.Nation) {
	for _, p := range n.Territory.Packed() {
		delete(u.state.Owners, p)
	}
	n.Territory = geo.NewSet()
	u.cloned[n.Owner] = true
}

// --- step 1: queued commands, FIFO ---

func (u *updater) applyCommands(cmds []Command) {
	for _, c := range cmds {
		if c.Kind == CmdJoin {
			u.applyJoin(c)
			continue
		}
		n := u.state.Nations[c.UserID]
		// Everything except found requires a live nation.
		if c.Kind != CmdFound && (n == nil || n.Status != model.NationActive) {
			continue
		}
		switch c.Kind {
		case CmdFound:
			u.applyFound(c)
		case CmdBuildCity:
			u.applyBuildCity(n, c)
		case CmdBuildStructure:
			u.applyBuildStructure(n, c)
		case CmdArrow:
			u.applyArrow(n, c)
		case CmdClearArrow:
			u.applyClearArrow(n, c)
		case CmdSettings:
			u.applySettings(n, c)
		case CmdQuit:
			n.Status = model.NationDefeated
			u.releaseAll(n)
			u.disband(n)
		}
	}
}

// applyJoin records a new room member. Joining does not create a nation;
// that happens when the player founds.
func (u *updater) applyJoin(c Command) {
	for _, p := range u.state.Players {
		if p.UserID == c.UserID {
			return
		}
	}
	u.state.Players = append(u.state.Players, model.Player{UserID: c.UserID})
}

func (u *updater) applyFound(c Command) {
	if existing := u.state.Nations[c.UserID]; existing != nil {
		if !(u.cfg.RefoundEnabled && existing.Status == model.NationDefeated) {
			return
		}
	}
	if !u.m.InBounds(c.X, c.Y) || !u.m.IsLand(c.X, c.Y) || u.state.OwnerAt(c.X, c.Y) != "" {
		return
	}
	n := &model.Nation{
		Owner:        c.UserID,
		StartingCell: geo.Coord{X: c.X, Y: c.Y},
		Territory:    geo.NewSet(),
		Population:   100,
		NationalWill: 50,
		Resources: map[string]float64{
			"food": 100, "wood": 50, "stone": 50, "iron": 0, "gold": 0,
		},
		TroopTarget:   0.5,
		AttackPercent: 0.25,
		Status:        model.NationActive,
	}
	u.state.Nations[c.UserID] = n
	u.cloned[c.UserID] = true
	u.claimCell(n, c.X, c.Y)
}

func (u *updater) applyBuildCity(n *model.Nation, c Command) {
	if !u.canPlace(n, c.X, c.Y) {
		return
	}
	cityType := c.CityType
	if cityType == "" {
		cityType = "city"
	}
	if !u.spend(n, u.cfg.BuildCosts["city"]) {
		return
	}
	name := c.CityName
	if name == "" {
		name = fmt.Sprintf("%s-%d", n.Owner, len(n.Cities)+1)
	}
	n.Cities = append(n.Cities, model.City{X: c.X, Y: c.Y, Type: cityType, Name: name})
}

func (u *updater) applyBuildStructure(n *model.Nation, c Command) {
	if !u.canPlace(n, c.X, c.Y) {
		return
	}
	costs, ok := u.cfg.BuildCosts[c.StructureType]
	if !ok || !u.spend(n, costs) {
		return
	}
	n.Structures = append(n.Structures, model.Structure{X: c.X, Y: c.Y, Type: c.StructureType})
}

// canPlace checks owned land with no existing city or structure.
func (u *updater) canPlace(n *model.Nation, x, y int) bool {
	if !u.m.InBounds(x, y) || !u.m.IsLand(x, y) || u.state.OwnerAt(x, y) != n.Owner {
		return false
	}
	for _, ct := range n.Cities {
		if ct.X == x && ct.Y == y {
			return false
		}
	}
	for _, st := range n.Structures {
		if st.X == x && st.Y == y {
			return false
		}
	}
	return true
}

// spend deducts costs atomically; nothing is deducted unless all are affordable.
func (u *updater) spend(n *model.Nation, costs map[string]float64) bool {
	for res, amount := range costs {
		if n.Resources[res] < amount {
			return false
		}
	}
	for res, amount := range costs {
		n.Resources[res] -= amount
	}
	return true
}

func (u *updater) applyArrow(n *model.Nation, c Command) {
	if len(c.Path) < 2 || u.state.OwnerAt(c.Path[0].X, c.Path[0].Y) != n.Owner {
		return
	}
	switch c.ArrowType {
	case model.ArrowAttack:
		attacks := 0
		for _, a := range n.Arrows {
			if a.Type == model.ArrowAttack {
				attacks++
			}
		}
		if attacks >= u.cfg.MaxAttackArrows {
			return
		}
	case model.ArrowDefend:
		for _, a := range n.Arrows {
			if a.Type == model.ArrowDefend {
				return
			}
		}
	default:
		return
	}
	percent := clamp(c.Percent, 0.05, 1)
	committed := n.Population * percent * u.cfg.Armies.Stats.PopulationCost
	if committed < 1 {
		return
	}
	n.Population -= committed
	n.Arrows = append(n.Arrows, model.ArrowOrder{
		Type:           c.ArrowType,
		Path:           c.Path,
		RemainingPower: committed,
		Percent:        percent,
	})
}

// applyClearArrow cancels arrows of the given type (or all when empty),
// returning their remaining troops.
func (u *updater) applyClearArrow(n *model.Nation, c Command) {
	kept := n.Arrows[:0]
	for _, a := range n.Arrows {
		if c.ArrowType == "" || a.Type == c.ArrowType {
			n.Population += a.RemainingPower
			continue
		}
		kept = append(kept, a)
	}
	n.Arrows = kept
}

func (u *updater) applySettings(n *model.Nation, c Command) {
	if c.TroopTarget != nil {
		n.TroopTarget = clamp(*c.TroopTarget, 0, 1)
	}
	if c.AttackPercent != nil {
		n.AttackPercent = clamp(*c.AttackPercent, 0.05, 1)
	}
	if c.AutoCity != nil {
		n.AutoCity = *c.AutoCity
	}
}

// --- step 2+3: arrow propagation and combat ---

func (u *updater) advanceArrows() {
	for _, n := range u.state.NationList() {
		if n.Status != model.NationActive {
			continue
		}
		kept := n.Arrows[:0]
		for i := range n.Arrows {
			a := &n.Arrows[i]
			if u.stepArrow(n, a) {
				kept = append(kept, *a)
			}
		}
		n.Arrows = kept
	}
}

// stepArrow advances one arrow and reports whether it survives the tick.
func (u *updater) stepArrow(n *model.Nation, a *model.ArrowOrder) bool {
	pos := min(int(a.Progress), len(a.Path)-1)
	cell := u.m.At(a.Path[pos].X, a.Path[pos].Y)

	// Larger committed forces move faster, rough terrain slower.
	troopFactor := 0.5 + 0.5*math.Min(1, a.RemainingPower/500)
	a.Progress += u.cfg.Armies.Stats.Speed * troopFactor / MovementCostOf(cell.Biome)

	newPos := min(int(a.Progress), len(a.Path)-1)
	for p := pos + 1; p <= newPos; p++ {
		x, y := a.Path[p].X, a.Path[p].Y
		if !u.m.InBounds(x, y) || !u.m.IsLand(x, y) {
			return false // path ran into water, arrow disbands
		}
		if a.Type != model.ArrowAttack {
			continue
		}
		owner := u.state.OwnerAt(x, y)
		switch {
		case owner == "" || u.nationDefeated(owner):
			u.claimCell(n, x, y)
		case owner != n.Owner:
			if !u.resolveCombat(n, a, x, y) {
				return false
			}
		}
	}

	if newPos >= len(a.Path)-1 {
		// Completed: troops return home. An attack arrow garrisons in place,
		// a defend arrow reinforces the population directly.
		n.Population += a.RemainingPower
		return false
	}
	return true
}

func (u *updater) nationDefeated(owner string) bool {
	n := u.state.Nations[owner]
	return n == nil || n.Status == model.NationDefeated
}

// resolveCombat fights for one contested cell and reports whether the arrow
// survives. At most one ownership transfer per cell per tick; ties go to
// the defender.
func (u *updater) resolveCombat(attacker *model.Nation, a *model.ArrowOrder, x, y int) bool {
	p := geo.Pack(x, y)
	if _, done := u.transferred[p]; done {
		return true
	}
	defender := u.state.Nations[u.state.Owners[p]]
	if defender == nil {
		u.claimCell(attacker, x, y)
		return true
	}

	density := defender.Population / math.Max(1, float64(defender.Territory.Len()))
	defense := density * u.defenseBonus(defender, x, y)
	attack := a.RemainingPower * u.cfg.Armies.Stats.Power * u.attackBonus(attacker)

	if attack > defense {
		// Winner pays half the loser's strength; the defender loses the
		// troops that held the cell.
		a.RemainingPower -= defense / 2 / u.cfg.Armies.Stats.Power
		defender.Population = math.Max(0, defender.Population-defense*0.5)
		u.claimCell(attacker, x, y)
		u.transferred.AddPacked(p)
	} else {
		a.RemainingPower -= math.Max(1, defense*0.5/u.cfg.Armies.Stats.Power)
		defender.Population = math.Max(0, defender.Population-attack*0.25)
	}
	return a.RemainingPower > 0
}

// attackBonus is 1.0 plus 0.25 per barracks, capped at x2.
func (u *updater) attackBonus(n *model.Nation) float64 {
	bonus := 1.0
	for _, s := range n.Structures {
		if s.Type == "barracks" {
			bonus += 0.25
		}
	}
	return math.Min(bonus, 2)
}

// defenseBonus is 1.0 plus fortification: x3 for a fort on the cell itself,
// x1.5 for a fort within Chebyshev distance 3.
func (u *updater) defenseBonus(n *model.Nation, x, y int) float64 {
	bonus := 1.0
	for _, s := range n.Structures {
		if s.Type != "fort" {
			continue
		}
		if s.X == x && s.Y == y {
			return 3.0
		}
		if abs(s.X-x) <= 3 && abs(s.Y-y) <= 3 && bonus < 1.5 {
			bonus = 1.5
		}
	}
	return bonus
}

// --- step 4: territory dynamics ---

func (u *updater) expandTerritories() {
	for _, n := range u.state.NationList() {
		if n.Status != model.NationActive || n.Territory.Len() == 0 {
			continue
		}
		u.expandNation(n)
	}
}

func (u *updater) expandNation(n *model.Nation) {
	// Frontier: unowned land 4-neighbors of owned cells, with adjacency counts.
	type candidate struct {
		x, y     int
		adjacent int
	}
	seen := make(map[uint32]*candidate)
	for _, p := range n.Territory.Packed() {
		x, y := geo.Unpack(p)
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if !u.m.InBounds(nx, ny) || !u.m.IsLand(nx, ny) {
				continue
			}
			if owner := u.state.OwnerAt(nx, ny); owner != "" && !u.nationDefeated(owner) {
				continue
			}
			np := geo.Pack(nx, ny)
			if c, ok := seen[np]; ok {
				c.adjacent++
			} else {
				seen[np] = &candidate{x: nx, y: ny, adjacent: 1}
			}
		}
	}
	if len(seen) == 0 {
		return
	}

	// Raster order keeps expansion deterministic for a given PRNG stream.
	cands := make([]*candidate, 0, len(seen))
	for _, c := range seen {
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].y != cands[j].y {
			return cands[i].y < cands[j].y
		}
		return cands[i].x < cands[j].x
	})

	budget := min(8, 1+n.Territory.Len()/25)
	willFactor := 0.5 + float64(n.NationalWill)/100
	for _, c := range cands {
		if budget == 0 {
			break
		}
		cell := u.m.At(c.x, c.y)
		score := u.cfg.DesirabilityOf(cell.Biome) +
			float64(c.adjacent)*u.cfg.CellDesirabilityBonus.AdjacentWeight
		prob := math.Min(1, score/200) * willFactor * 0.5
		if u.rng.Float64() >= prob {
			continue
		}
		if !u.spend(n, u.cfg.ExpansionCost) {
			break
		}
		u.claimCell(n, c.x, c.y)
		budget--
	}
}

// --- step 5: population and resources ---

func (u *updater) growNations() {
	for _, n := range u.state.NationList() {
		if n.Status != model.NationActive {
			continue
		}
		terr := float64(n.Territory.Len())
		if terr == 0 {
			continue
		}
		cities := float64(len(n.Cities))

		growth := u.cfg.Population.GrowthRate * terr * (1 + u.cfg.CityBonus*cities/terr)
		cap := u.cfg.Population.MaxPerTerritory*terr + u.cfg.CityBonus*cities
		n.Population = math.Min(cap, n.Population+growth)
		if n.Population < 0 {
			n.Population = 0
		}

		u.yieldResources(n)
		u.updateWill(n)
	}
}

// yieldResources regenerates resources from owned cells: baseYield per
// tagged cell, scaled by structure multipliers and a flat food trickle from
// untagged land.
func (u *updater) yieldResources(n *model.Nation) {
	mult := map[string]float64{"food": 1, "wood": 1, "stone": 1, "iron": 1, "gold": 1}
	for _, s := range n.Structures {
		switch s.Type {
		case "farm":
			mult["food"] += 0.5
		case "sawmill":
			mult["wood"] += 0.5
		case "mine":
			mult["stone"] += 0.5
			mult["iron"] += 0.5
			mult["gold"] += 0.5
		}
	}
	for k := range mult {
		if mult[k] > 3 {
			mult[k] = 3
		}
	}

	base := u.cfg.Resource.BaseYield
	for _, p := range n.Territory.Packed() {
		x, y := geo.Unpack(p)
		cell := u.m.At(x, y)
		if len(cell.Resources) == 0 {
			n.Resources["food"] += base * 0.25 * mult["food"]
			continue
		}
		for _, r := range cell.Resources {
			name := r.String()
			n.Resources[name] += base * mult[name]
		}
	}
	for k, v := range n.Resources {
		if v < 0 {
			n.Resources[k] = 0
		}
	}
}

// updateWill nudges national will toward recent fortunes: expansion raises
// morale, losses sap it.
func (u *updater) updateWill(n *model.Nation) {
	prev, ok := u.prevSize[n.Owner]
	if !ok {
		return
	}
	cur := n.Territory.Len()
	switch {
	case cur > prev:
		n.NationalWill = min(100, n.NationalWill+1)
	case cur < prev:
		n.NationalWill = max(0, n.NationalWill-2)
	}
}

// --- step 6: auto-cities ---

func (u *updater) autoCities() {
	for _, n := range u.state.NationList() {
		if n.Status != model.NationActive || !n.AutoCity {
			continue
		}
		wanted := n.Territory.Len() / u.cfg.AutoCityPerCell
		if len(n.Cities) >= wanted {
			continue
		}
		x, y, ok := u.citySite(n)
		if !ok || !u.spend(n, u.cfg.BuildCosts["city"]) {
			continue
		}
		n.Cities = append(n.Cities, model.City{
			X: x, Y: y, Type: "city",
			Name: fmt.Sprintf("%s-%d", n.Owner, len(n.Cities)+1),
		})
	}
}

// citySite picks the owned cell nearest the territory centroid that has no
// city or structure yet.
func (u *updater) citySite(n *model.Nation) (int, int, bool) {
	packed := n.Territory.Packed()
	if len(packed) == 0 {
		return 0, 0, false
	}
	var sx, sy int
	for _, p := range packed {
		x, y := geo.Unpack(p)
		sx += x
		sy += y
	}
	cx, cy := sx/len(packed), sy/len(packed)

	bestD := math.MaxFloat64
	bx, by, found := 0, 0, false
	for _, p := range packed {
		x, y := geo.Unpack(p)
		if !u.canPlace(n, x, y) {
			continue
		}
		d := float64((x-cx)*(x-cx) + (y-cy)*(y-cy))
		if d < bestD {
			bestD, bx, by, found = d, x, y, true
		}
	}
	return bx, by, found
}

// --- steps 7+8: defeat and victory ---

func (u *updater) resolveDefeats() {
	for _, n := range u.state.NationList() {
		if n.Status == model.NationActive && n.Territory.Len() == 0 {
			n.Status = model.NationDefeated
			u.disband(n)
		}
	}
}

// disband strips a defeated nation to a tombstone.
func (u *updater) disband(n *model.Nation) {
	n.Cities = nil
	n.Structures = nil
	n.Arrows = nil
	n.Population = 0
}

func (u *updater) checkVictory() {
	land := float64(u.m.LandCells())
	if land == 0 {
		return
	}
	for _, n := range u.state.NationList() {
		if n.Status != model.NationActive {
			continue
		}
		pct := float64(n.Territory.Len()) / land * 100
		if pct >= u.cfg.WinConditionPercentage {
			n.Status = model.NationWinner
			u.state.Status = model.RoomEnded
			u.state.Winner = n.Owner
			return
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
