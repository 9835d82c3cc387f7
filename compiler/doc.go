/*

Process of compilation

Program Text (ir in textual form) ->
	parse ->
Intermediate Representation (ir) ->
	regalloc, back ->
Assembly Text (ARMv7, GNU as syntax) ->
	sim ->
Program Output

Assembly is what we produce.
The simulator runs the subset of it we emit, it is how the output is tested.

*/
package compiler
