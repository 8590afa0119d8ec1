package layout

import "math"

// jiggle returns a tiny random offset used to separate coincident points.
func (s *Simulation) jiggle() float64 {
	return (s.rng.Float64() - 0.5) * 1e-6
}

// applyCharge applies pairwise many-body repulsion within ChargeDistanceMax.
func (s *Simulation) applyCharge() {
	p := s.params
	if p.ChargeStrength == 0 {
		return
	}
	maxSq := p.ChargeDistanceMax * p.ChargeDistanceMax
	minSq := p.ChargeDistanceMin * p.ChargeDistanceMin
	for i := 0; i < len(s.pos); i++ {
		for j := i + 1; j < len(s.pos); j++ {
			dx := s.pos[j].X - s.pos[i].X
			dy := s.pos[j].Y - s.pos[i].Y
			l := dx*dx + dy*dy
			if maxSq > 0 && l >= maxSq {
				continue
			}
			if dx == 0 {
				dx = s.jiggle()
				l += dx * dx
			}
			if dy == 0 {
				dy = s.jiggle()
				l += dy * dy
			}
			if l < minSq {
				l = math.Sqrt(minSq * l)
			}
			w := p.ChargeStrength * s.alpha / l
			s.vel[i].x += dx * w
			s.vel[i].y += dy * w
			s.vel[j].x -= dx * w
			s.vel[j].y -= dy * w
		}
	}
}

// applyLinks pulls linked nodes toward LinkDistance.
func (s *Simulation) applyLinks() {
	for _, l := range s.links {
		src, dst := l.source, l.target
		dx := s.pos[dst].X + s.vel[dst].x - s.pos[src].X - s.vel[src].x
		dy := s.pos[dst].Y + s.vel[dst].y - s.pos[src].Y - s.vel[src].y
		if dx == 0 {
			dx = s.jiggle()
		}
		if dy == 0 {
			dy = s.jiggle()
		}
		dist := math.Sqrt(dx*dx + dy*dy)
		k := (dist - s.params.LinkDistance) / dist * s.alpha * l.strength
		dx *= k
		dy *= k
		s.vel[dst].x -= dx * l.bias
		s.vel[dst].y -= dy * l.bias
		s.vel[src].x += dx * (1 - l.bias)
		s.vel[src].y += dy * (1 - l.bias)
	}
}

// applyCollide separates overlapping circles, weighting the push by area.
func (s *Simulation) applyCollide() {
	p := s.params
	if p.CollideStrength == 0 {
		return
	}
	for iter := 0; iter < max(p.CollideIterations, 1); iter++ {
		for i := 0; i < len(s.pos); i++ {
			ri := s.radius[i] + p.CollidePadding
			xi := s.pos[i].X + s.vel[i].x
			yi := s.pos[i].Y + s.vel[i].y
			for j := i + 1; j < len(s.pos); j++ {
				rj := s.radius[j] + p.CollidePadding
				r := ri + rj
				dx := xi - s.pos[j].X - s.vel[j].x
				dy := yi - s.pos[j].Y - s.vel[j].y
				l := dx*dx + dy*dy
				if l >= r*r {
					continue
				}
				if dx == 0 {
					dx = s.jiggle()
					l += dx * dx
				}
				if dy == 0 {
					dy = s.jiggle()
					l += dy * dy
				}
				l = math.Sqrt(l)
				k := (r - l) / l * p.CollideStrength
				dx *= k
				dy *= k
				share := rj * rj / (ri*ri + rj*rj)
				s.vel[i].x += dx * share
				s.vel[i].y += dy * share
				s.vel[j].x -= dx * (1 - share)
				s.vel[j].y -= dy * (1 - share)
			}
		}
	}
}

// applyCenter translates the layout so its mean sits at the origin.
func (s *Simulation) applyCenter() {
	n := len(s.pos)
	if n == 0 || s.params.CenterStrength == 0 {
		return
	}
	var sx, sy float64
	for _, p := range s.pos {
		sx += p.X
		sy += p.Y
	}
	sx = sx / float64(n) * s.params.CenterStrength
	sy = sy / float64(n) * s.params.CenterStrength
	for i := range s.pos {
		s.pos[i].X -= sx
		s.pos[i].Y -= sy
	}
}
