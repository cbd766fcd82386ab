package battery

// ADCConfigFor builds the converter setup the sampler relies on: single-shot, right aligned,
// one sequence entry selected per call, Vrefint enabled, and the longest sampling time on both
// channels to tolerate the high source impedance of the divider.
func ADCConfigFor(p Params) ADCConfig {
	return ADCConfig{
		Resolution:     p.ResolutionBits,
		Align:          AlignRight,
		Continuous:     false,
		SequenceLength: 1,
		VrefIntEnable:  true,
		AnalogPins:     []Channel{p.BatteryChannel},
		SampleTimes: map[Channel]SampleTime{
			ChannelVrefInt:   p.SampleTime,
			p.BatteryChannel: p.SampleTime,
		},
	}
}

// Configure validates p and applies the battery measurement setup to adc.
// Register writes are not expected to fail; only invalid parameters are reported.
func Configure(adc ADC, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	adc.Configure(ADCConfigFor(p))
	return nil
}
