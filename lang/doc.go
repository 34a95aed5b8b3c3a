// Package lang parses quill components.
//
// A component is XML-shaped markup in which elements carrying the reserved
// prefix (by default "q:") are control tags and every other element is
// host markup written through to output. Text and attribute values may
// contain {expression} bindings.
//
// # Example
//
//	<q:param name="items" type="array" required="true"/>
//	<ul>
//	  <q:loop items="items" var="item" index="i">
//	    <li id="item-{i}">{item.name}</li>
//	  </q:loop>
//	</ul>
//	<q:if condition="{len(items) == 0}">
//	  <p>nothing here</p>
//	</q:if>
//	<q:else>
//	  <p>{len(items)} items</p>
//	</q:else>
//
// # Parsing
//
// Parsing runs in two passes. A scanner splits the source into a tree of
// elements and text, tracking line and column. A builder then maps each
// control tag to its [Node] variant and validates attributes.
//
// The q:elseif and q:else clauses of a conditional may appear either as
// children of q:if or as its immediately following siblings. Functions,
// imports and component parameters are hoisted into the [Component].
//
// Errors are reported as *[SyntaxError] values; use [errors.Is] with
// [ErrSyntax] to test for them.
package lang
