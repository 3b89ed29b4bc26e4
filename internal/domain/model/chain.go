package model

type Chain string

const ChainViction Chain = "viction"

func (c Chain) String() string {
	return string(c)
}
